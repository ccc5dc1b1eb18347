package dragsim_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/podium/internal/adapters/http/api"
	service "github.com/okian/podium/internal/app"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/types"
	"github.com/okian/podium/internal/domain/validation"
	"github.com/okian/podium/internal/dragsim"
	. "github.com/smartystreets/goconvey/convey"
)

func newServer(svc *service.Service) *httptest.Server {
	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(mux)
	return httptest.NewServer(mux)
}

func config(url string) dragsim.Config {
	return dragsim.Config{
		BaseURL:   url,
		RankingID: "sim",
		Size:      8,
		Items:     12,
		Drags:     300,
		Workers:   16,
		Timeout:   5 * time.Second,
		Seed:      7,
	}
}

func TestRun(t *testing.T) {
	Convey("Given a podium server", t, func() {
		svc := service.New()
		ts := newServer(svc)
		defer ts.Close()
		ctx := context.Background()

		Convey("When a simulation runs against it", func() {
			r, err := dragsim.NewRunner(config(ts.URL), dragsim.WithHTTPClient(ts.Client()))
			So(err, ShouldBeNil)
			stats, err := r.Run(ctx)

			Convey("Then every drag is accounted for and the ranking is consistent", func() {
				So(err, ShouldBeNil)
				So(stats.RankingID, ShouldEqual, "sim")
				So(stats.Submitted, ShouldEqual, 300)
				So(stats.Succeeded+stats.Rejected+stats.Locked+stats.Failed, ShouldEqual, 300)
				So(stats.Succeeded, ShouldBeGreaterThan, 0)
				So(stats.Occupied, ShouldEqual, stats.Used)
				So(stats.Occupied, ShouldBeLessThanOrEqualTo, 8)

				v, err := svc.Ranking(ctx, "sim")
				So(err, ShouldBeNil)
				So(v.Occupied, ShouldEqual, stats.Occupied)
			})
		})

		Convey("When the ranking id is already taken", func() {
			_, err := svc.CreateRanking(ctx, service.CreateRequest{ID: "sim"})
			So(err, ShouldBeNil)
			r, err := dragsim.NewRunner(config(ts.URL))
			So(err, ShouldBeNil)
			_, err = r.Run(ctx)
			So(errors.Is(err, dragsim.ErrUnexpected), ShouldBeTrue)
		})
	})

	Convey("Given a server that is not healthy", t, func() {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer ts.Close()

		r, err := dragsim.NewRunner(config(ts.URL))
		So(err, ShouldBeNil)
		_, err = r.Run(context.Background())
		So(errors.Is(err, dragsim.ErrUnhealthy), ShouldBeTrue)
	})
}

func TestNewRunnerValidation(t *testing.T) {
	Convey("Invalid configs are refused", t, func() {
		mutations := []struct {
			name   string
			mutate func(*dragsim.Config)
		}{
			{"empty url", func(c *dragsim.Config) { c.BaseURL = "" }},
			{"zero size", func(c *dragsim.Config) { c.Size = 0 }},
			{"no items", func(c *dragsim.Config) { c.Items = 0 }},
			{"negative drags", func(c *dragsim.Config) { c.Drags = -1 }},
			{"no workers", func(c *dragsim.Config) { c.Workers = 0 }},
			{"zero timeout", func(c *dragsim.Config) { c.Timeout = 0 }},
		}
		for _, m := range mutations {
			Convey(m.name, func() {
				cfg := config("http://localhost:9080")
				m.mutate(&cfg)
				_, err := dragsim.NewRunner(cfg)
				So(errors.Is(err, dragsim.ErrInvalidConfig), ShouldBeTrue)
			})
		}
	})
}

func TestGenerate(t *testing.T) {
	Convey("Given a seeded generator", t, func() {
		items := dragsim.Items(5)
		a := dragsim.Generate(42, 200, 6, items)
		b := dragsim.Generate(42, 200, 6, items)

		Convey("The same seed yields the same drags", func() {
			So(a, ShouldResemble, b)
			So(dragsim.Generate(43, 200, 6, items), ShouldNotResemble, a)
		})

		Convey("Every drag is well formed", func() {
			So(len(a), ShouldEqual, 200)
			known := map[string]bool{}
			for _, it := range items {
				known[it.ID] = true
			}
			kinds := map[string]int{}
			for _, d := range a {
				kinds[d.Kind]++
				switch validation.Kind(d.Kind) {
				case validation.KindAssign:
					So(known[d.ItemID], ShouldBeTrue)
					if d.To == nil {
						So(d.Source, ShouldEqual, string(model.SourceAuto))
					} else {
						So(*d.To, ShouldBeBetweenOrEqual, 0, 5)
					}
				case validation.KindMove, validation.KindSwap:
					So(d.From, ShouldNotBeNil)
					So(d.To, ShouldNotBeNil)
					So(*d.From, ShouldBeBetweenOrEqual, 0, 5)
					So(*d.To, ShouldBeBetweenOrEqual, 0, 5)
				case validation.KindRemove:
					So(d.From, ShouldNotBeNil)
				default:
					So(d.Kind, ShouldBeEmpty)
				}
			}
			So(len(kinds), ShouldEqual, 4)
		})
	})
}

func TestCheck(t *testing.T) {
	Convey("Given a consistent ranking and backlog", t, func() {
		v := service.RankingView{
			ID:       "r",
			Size:     3,
			Occupied: 2,
			Entries: []types.Entry{
				{Rank: 1, Position: 0, ItemID: "a"},
				{Rank: 3, Position: 2, ItemID: "b"},
			},
		}
		backlog := []types.BacklogEntry{
			{Item: model.ItemSnapshot{ID: "a"}, Used: true},
			{Item: model.ItemSnapshot{ID: "b"}, Used: true},
			{Item: model.ItemSnapshot{ID: "c"}},
		}

		Convey("Check passes", func() {
			So(dragsim.Check(v, backlog), ShouldBeNil)
		})

		Convey("An item placed twice is reported", func() {
			v.Entries[1].ItemID = "a"
			err := dragsim.Check(v, backlog)
			So(errors.Is(err, dragsim.ErrInconsistent), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "item a placed at 0 and 2")
			So(err.Error(), ShouldContainSubstring, "item b is flagged used but not placed")
		})

		Convey("A placed item not flagged used is reported", func() {
			backlog[1].Used = false
			err := dragsim.Check(v, backlog)
			So(errors.Is(err, dragsim.ErrInconsistent), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "item b is placed but not flagged used")
		})

		Convey("A used item off the table is reported", func() {
			backlog[2].Used = true
			So(dragsim.Check(v, backlog).Error(), ShouldContainSubstring, "item c is flagged used but not placed")
		})

		Convey("Positions out of range, shared positions and a wrong count are reported", func() {
			v.Entries = append(v.Entries, types.Entry{Position: 2, ItemID: "c"}, types.Entry{Position: 5, ItemID: "d"})
			backlog[2].Used = true
			err := dragsim.Check(v, backlog)
			So(errors.Is(err, dragsim.ErrInconsistent), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "occupied is 2 but 4 entries listed")
			So(err.Error(), ShouldContainSubstring, "position 2 holds both b and c")
			So(err.Error(), ShouldContainSubstring, "item d at position 5 outside [0,3)")
			So(err.Error(), ShouldContainSubstring, "item d is placed but not in the backlog")
		})
	})
}
