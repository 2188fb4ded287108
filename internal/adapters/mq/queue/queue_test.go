package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/okian/livebid/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func envelope(i int) model.GiftEnvelope {
	return model.GiftEnvelope{
		BroadcasterID: "alice",
		Payload:       json.RawMessage(fmt.Sprintf(`{"msgId":"%d"}`, i)),
		ReceivedAt:    time.Unix(int64(i), 0),
	}
}

func TestGiftQueue(t *testing.T) {
	Convey("Given a queue with room for two gifts", t, func() {
		ctx := context.Background()
		q := New(WithCapacity(2))
		So(q.Cap(), ShouldEqual, 2)
		So(q.Len(), ShouldEqual, 0)

		Convey("When two gifts are pushed", func() {
			So(q.Push(ctx, envelope(1)), ShouldBeNil)
			So(q.Push(ctx, envelope(2)), ShouldBeNil)

			Convey("Then a third is refused as full", func() {
				So(errors.Is(q.Push(ctx, envelope(3)), ErrFull), ShouldBeTrue)
				So(q.Len(), ShouldEqual, 2)
			})

			Convey("Then Next hands them out oldest first", func() {
				a, ok := q.Next(ctx)
				So(ok, ShouldBeTrue)
				So(string(a.Payload), ShouldEqual, `{"msgId":"1"}`)
				b, _ := q.Next(ctx)
				So(string(b.Payload), ShouldEqual, `{"msgId":"2"}`)
				So(q.Len(), ShouldEqual, 0)
			})
		})

		Convey("When the queue is closed with a gift inside", func() {
			So(q.Push(ctx, envelope(1)), ShouldBeNil)
			So(q.Close(), ShouldBeNil)
			So(q.Close(), ShouldBeNil)

			Convey("Then pushes are refused", func() {
				So(errors.Is(q.Push(ctx, envelope(2)), ErrClosed), ShouldBeTrue)
			})

			Convey("Then the queued gift drains before Next reports the end", func() {
				_, ok := q.Next(ctx)
				So(ok, ShouldBeTrue)
				_, ok = q.Next(ctx)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When the caller's context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			Convey("Then Push returns the context error without blocking", func() {
				So(errors.Is(q.Push(cctx, envelope(1)), context.Canceled), ShouldBeTrue)
			})

			Convey("Then Next on an empty queue returns at once", func() {
				_, ok := q.Next(cctx)
				So(ok, ShouldBeFalse)
			})
		})
	})
}

func TestGiftQueueOrder(t *testing.T) {
	Convey("Fifty gifts come out in the order they went in", t, func() {
		ctx := context.Background()
		q := New(WithCapacity(100))
		for i := 0; i < 50; i++ {
			So(q.Push(ctx, envelope(i)), ShouldBeNil)
		}
		_ = q.Close()

		var got []int64
		for {
			e, ok := q.Next(ctx)
			if !ok {
				break
			}
			got = append(got, e.ReceivedAt.Unix())
		}
		So(got, ShouldHaveLength, 50)
		for i, v := range got {
			So(v, ShouldEqual, int64(i))
		}
	})
}
