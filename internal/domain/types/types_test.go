package types_test

import (
	"errors"
	"testing"

	"github.com/goccy/go-json"
	types "github.com/okian/livebid/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMessageEncoding(t *testing.T) {
	Convey("Given outbound messages", t, func() {
		Convey("When encoding an empty leaderboard update", func() {
			b, err := json.Marshal(types.NewLeaderboardUpdate(nil))

			Convey("Then donors is an empty array", func() {
				So(err, ShouldBeNil)
				So(string(b), ShouldContainSubstring, `"donors":[]`)
				So(string(b), ShouldContainSubstring, `"type":"leaderboard-update"`)
			})
		})

		Convey("When encoding a populated leaderboard update", func() {
			b, err := json.Marshal(types.NewLeaderboardUpdate([]types.DonorEntry{
				{UniqueID: "alice", Label: "Alice", TotalCoins: 120, ProfilePictureURL: "https://cdn/a.png"},
			}))

			Convey("Then every donor field is present", func() {
				So(err, ShouldBeNil)
				So(string(b), ShouldContainSubstring, `"uniqueId":"alice"`)
				So(string(b), ShouldContainSubstring, `"label":"Alice"`)
				So(string(b), ShouldContainSubstring, `"totalCoins":120`)
				So(string(b), ShouldContainSubstring, `"profilePictureUrl":"https://cdn/a.png"`)
			})
		})

		Convey("When encoding an error that needs auth", func() {
			b, err := json.Marshal(types.NewError("sign in", true))

			Convey("Then needsAuth is true", func() {
				So(err, ShouldBeNil)
				So(string(b), ShouldEqual, `{"type":"error","message":"sign in","needsAuth":true}`)
			})
		})

		Convey("When encoding a plain error", func() {
			b, err := json.Marshal(types.NewError("boom", false))

			Convey("Then needsAuth is omitted", func() {
				So(err, ShouldBeNil)
				So(string(b), ShouldNotContainSubstring, "needsAuth")
				So(string(b), ShouldNotContainSubstring, "donors")
			})
		})

		Convey("When encoding a timer update", func() {
			m, err := types.NewData(types.TypeTimerUpdate, types.TimerUpdate{TimeLeft: 3, Phase: "INITIAL", Running: true})
			So(err, ShouldBeNil)
			b, err := json.Marshal(m)

			Convey("Then data is nested", func() {
				So(err, ShouldBeNil)
				So(string(b), ShouldContainSubstring, `"data":{"timeLeft":3,"phase":"INITIAL","tieExtensions":0,"running":true}`)
			})
		})
	})
}

func TestParse(t *testing.T) {
	Convey("Given inbound frames", t, func() {
		Convey("When parsing a connect frame", func() {
			m, err := types.Parse([]byte(`{"type":"connect","uniqueId":"@Alice","sessionId":"s","ttTargetIdc":"useast"}`))

			Convey("Then the credentials are extracted", func() {
				So(err, ShouldBeNil)
				So(m.Type, ShouldEqual, types.TypeConnect)
				So(m.UniqueID, ShouldEqual, "@Alice")
				So(m.SessionID, ShouldEqual, "s")
				So(m.TargetIDC, ShouldEqual, "useast")
			})
		})

		Convey("When parsing garbage", func() {
			_, err := types.Parse([]byte(`not json`))

			Convey("Then ErrMalformed is returned", func() {
				So(errors.Is(err, types.ErrMalformed), ShouldBeTrue)
			})
		})

		Convey("When the type is missing", func() {
			_, err := types.Parse([]byte(`{"uniqueId":"x"}`))

			Convey("Then ErrMalformed is returned", func() {
				So(errors.Is(err, types.ErrMalformed), ShouldBeTrue)
			})
		})
	})
}
