package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/podium/internal/adapters/http/api"
	service "github.com/okian/podium/internal/app"
	"github.com/okian/podium/internal/domain/transfer"
	"github.com/okian/podium/internal/domain/types"
	"github.com/okian/podium/internal/domain/validation"
	. "github.com/smartystreets/goconvey/convey"
)

// stubbed overrides selected service calls.
type stubbed struct {
	*service.Service
	transfer func() (transfer.Result, error)
	ranking  func() (service.RankingView, error)
}

func (s *stubbed) Transfer(ctx context.Context, id string, req service.TransferRequest) (transfer.Result, error) {
	if s.transfer != nil {
		return s.transfer()
	}
	return s.Service.Transfer(ctx, id, req)
}

func (s *stubbed) Ranking(ctx context.Context, id string) (service.RankingView, error) {
	if s.ranking != nil {
		return s.ranking()
	}
	return s.Service.Ranking(ctx, id)
}

func newTestServer(deps *stubbed) *httptest.Server {
	mux := http.NewServeMux()
	api.NewServer(deps, deps.Service).Register(mux)
	return httptest.NewServer(mux)
}

func call(ts *httptest.Server, method, path, body string) (int, []byte) {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	So(err, ShouldBeNil)
	resp, err := ts.Client().Do(req)
	So(err, ShouldBeNil)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	So(err, ShouldBeNil)
	return resp.StatusCode, b
}

func decodeInto(b []byte, v any) {
	So(json.NewDecoder(bytes.NewReader(b)).Decode(v), ShouldBeNil)
}

func TestRankingRoutes(t *testing.T) {
	Convey("Given an API server over a fresh service", t, func() {
		deps := &stubbed{Service: service.New()}
		ts := newTestServer(deps)
		defer ts.Close()

		status, body := call(ts, http.MethodPost, "/rankings",
			`{"id":"top","size":5,"items":[{"id":"x","title":"X"},{"id":"y","title":"Y"}]}`)
		So(status, ShouldEqual, http.StatusCreated)

		Convey("When reading the ranking", func() {
			var v service.RankingView
			decodeInto(body, &v)
			status, _ := call(ts, http.MethodGet, "/rankings/top", "")
			missing, errBody := call(ts, http.MethodGet, "/rankings/nope", "")

			Convey("Then it should be served and unknown ids should 404", func() {
				So(v.ID, ShouldEqual, "top")
				So(v.Size, ShouldEqual, 5)
				So(status, ShouldEqual, http.StatusOK)
				So(missing, ShouldEqual, http.StatusNotFound)
				So(string(errBody), ShouldContainSubstring, `"code":"not_found"`)
			})
		})

		Convey("When creating the same id again or sending garbage", func() {
			dup, _ := call(ts, http.MethodPost, "/rankings", `{"id":"top"}`)
			bad, _ := call(ts, http.MethodPost, "/rankings", `{"id":`)
			unknown, _ := call(ts, http.MethodPost, "/rankings", `{"slots":3}`)

			Convey("Then the API should refuse them", func() {
				So(dup, ShouldEqual, http.StatusConflict)
				So(bad, ShouldEqual, http.StatusBadRequest)
				So(unknown, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When dropping x on position 2 twice", func() {
			first, firstBody := call(ts, http.MethodPost, "/rankings/top/transfers", `{"kind":"assign","item_id":"x","to":2}`)
			second, secondBody := call(ts, http.MethodPost, "/rankings/top/transfers", `{"kind":"assign","item_id":"x","to":3}`)
			_, itemsBody := call(ts, http.MethodGet, "/rankings/top/items", "")

			Convey("Then the first should succeed and the second be a conflict", func() {
				var ok, rejected transfer.Result
				decodeInto(firstBody, &ok)
				decodeInto(secondBody, &rejected)
				So(first, ShouldEqual, http.StatusOK)
				So(ok.Success, ShouldBeTrue)
				So(ok.To, ShouldEqual, 2)
				So(second, ShouldEqual, http.StatusConflict)
				So(rejected.Code, ShouldEqual, validation.CodeSourceAlreadyUsed)

				var entries []types.BacklogEntry
				decodeInto(itemsBody, &entries)
				So(entries, ShouldHaveLength, 2)
				So(entries[0].Used, ShouldBeTrue)
				So(entries[1].Used, ShouldBeFalse)
			})
		})

		Convey("When the transfer request is malformed", func() {
			status, _ := call(ts, http.MethodPost, "/rankings/top/transfers", `{"kind":"yeet"}`)

			Convey("Then it should be a bad request", func() {
				So(status, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When a transfer is blocked by another drag", func() {
			deps.transfer = func() (transfer.Result, error) {
				return transfer.Result{Code: validation.CodeSourceAlreadyUsed, Transient: true}, nil
			}
			status, _ := call(ts, http.MethodPost, "/rankings/top/transfers", `{"kind":"assign","item_id":"x"}`)

			Convey("Then the client should be told to retry", func() {
				So(status, ShouldEqual, http.StatusLocked)
			})
		})

		Convey("When a transfer fails unexpectedly", func() {
			deps.transfer = func() (transfer.Result, error) {
				return transfer.Result{Code: validation.CodeUnknownError}, nil
			}
			status, _ := call(ts, http.MethodPost, "/rankings/top/transfers", `{"kind":"assign","item_id":"x"}`)

			Convey("Then it should be a server error", func() {
				So(status, ShouldEqual, http.StatusInternalServerError)
			})
		})

		Convey("When the service returns an unmapped error", func() {
			deps.ranking = func() (service.RankingView, error) { return service.RankingView{}, errors.New("boom") }
			status, body := call(ts, http.MethodGet, "/rankings/top", "")

			Convey("Then it should be a server error", func() {
				So(status, ShouldEqual, http.StatusInternalServerError)
				So(string(body), ShouldContainSubstring, "internal_error")
			})
		})

		Convey("When asking for suggestions", func() {
			status, body := call(ts, http.MethodPost, "/rankings/top/suggestions",
				`{"pointer":{"x":50,"y":25},"slots":[{"position":0,"bounds":{"x":0,"y":0,"width":100,"height":50}}]}`)

			Convey("Then the slot under the pointer should be suggested", func() {
				So(status, ShouldEqual, http.StatusOK)
				So(string(body), ShouldContainSubstring, `"is_top_suggestion":true`)
			})
		})

		Convey("When managing backlog items", func() {
			added, _ := call(ts, http.MethodPost, "/rankings/top/items", `{"items":[{"id":"z","title":"Z"}]}`)
			removed, _ := call(ts, http.MethodDelete, "/rankings/top/items/z", "")
			again, _ := call(ts, http.MethodDelete, "/rankings/top/items/z", "")

			Convey("Then add and remove should work once", func() {
				So(added, ShouldEqual, http.StatusOK)
				So(removed, ShouldEqual, http.StatusNoContent)
				So(again, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When round-tripping tiers and brackets", func() {
			call(ts, http.MethodPost, "/rankings/top/transfers", `{"kind":"assign","item_id":"x","to":0}`)
			tierStatus, tierBody := call(ts, http.MethodPost, "/rankings/top/tiers/export",
				`{"tiers":[{"name":"S","start":0,"end":2},{"name":"A","start":2,"end":5}]}`)
			importStatus, importBody := call(ts, http.MethodPost, "/rankings/top/tiers/import",
				`{"config":{"tiers":[{"name":"S","start":0,"end":2}]},"groups":[{"name":"S","item_ids":["y","x"]}]}`)
			bracketStatus, bracketBody := call(ts, http.MethodPost, "/rankings/top/bracket/export", `{"entrants":2}`)
			failStatus, _ := call(ts, http.MethodPost, "/rankings/top/bracket/import", `{"places":[{"place":1,"item_id":"ghost"}]}`)

			Convey("Then each view should respond", func() {
				So(tierStatus, ShouldEqual, http.StatusOK)
				So(string(tierBody), ShouldContainSubstring, `"item_ids":["x",""]`)
				So(importStatus, ShouldEqual, http.StatusOK)
				var v service.RankingView
				decodeInto(importBody, &v)
				So(v.Entries, ShouldHaveLength, 2)
				So(v.Entries[0].ItemID, ShouldEqual, "y")
				So(bracketStatus, ShouldEqual, http.StatusOK)
				So(string(bracketBody), ShouldContainSubstring, `"seed":1`)
				So(failStatus, ShouldEqual, http.StatusConflict)
			})
		})

		Convey("When snapshotting and restoring", func() {
			call(ts, http.MethodPost, "/rankings/top/transfers", `{"kind":"assign","item_id":"y","to":4}`)
			snapStatus, snap := call(ts, http.MethodGet, "/rankings/top/snapshot", "")
			call(ts, http.MethodPost, "/rankings/top/transfers", `{"kind":"remove","from":4}`)
			restoreStatus, _ := call(ts, http.MethodPost, "/rankings/top/restore", string(snap))
			_, after := call(ts, http.MethodGet, "/rankings/top", "")

			Convey("Then the snapshot state should come back", func() {
				So(snapStatus, ShouldEqual, http.StatusOK)
				So(restoreStatus, ShouldEqual, http.StatusOK)
				var v service.RankingView
				decodeInto(after, &v)
				So(v.Entries, ShouldHaveLength, 1)
				So(v.Entries[0].Position, ShouldEqual, 4)
			})
		})

		Convey("When deleting the ranking", func() {
			status, _ := call(ts, http.MethodDelete, "/rankings/top", "")
			list, body := call(ts, http.MethodGet, "/rankings", "")

			Convey("Then it should be gone", func() {
				So(status, ShouldEqual, http.StatusNoContent)
				So(list, ShouldEqual, http.StatusOK)
				So(strings.TrimSpace(string(body)), ShouldEqual, "[]")
			})
		})

		Convey("When reading stats and health", func() {
			statsStatus, stats := call(ts, http.MethodGet, "/stats", "")
			healthStatus, health := call(ts, http.MethodGet, "/healthz", "")

			Convey("Then both should be served", func() {
				So(statsStatus, ShouldEqual, http.StatusOK)
				So(string(stats), ShouldContainSubstring, `"rankings":1`)
				So(healthStatus, ShouldEqual, http.StatusOK)
				So(string(health), ShouldContainSubstring, "podium_")
			})
		})
	})
}
