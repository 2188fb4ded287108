package model_test

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	model "github.com/okian/livebid/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDonorWireShape(t *testing.T) {
	Convey("Given a donor snapshot", t, func() {
		d := model.Donor{Rank: 1, UniqueID: "alice", Label: "Alice", TotalCoins: 120}

		Convey("When it is encoded", func() {
			b, err := json.Marshal(d)

			Convey("Then it uses the display-surface field names", func() {
				So(err, ShouldBeNil)
				So(string(b), ShouldContainSubstring, `"uniqueId":"alice"`)
				So(string(b), ShouldContainSubstring, `"totalCoins":120`)
				So(string(b), ShouldNotContainSubstring, "profilePictureUrl")
			})
		})
	})
}

func TestRoundResultWithoutWinner(t *testing.T) {
	Convey("Given a round that finished without donors", t, func() {
		r := model.RoundResult{RoundID: "r1", FinishedAt: time.Unix(0, 0).UTC()}

		Convey("Then the winner is omitted from the encoding", func() {
			b, err := json.Marshal(r)
			So(err, ShouldBeNil)
			So(string(b), ShouldNotContainSubstring, "winner")
		})
	})
}
