package dragsim

import (
	"fmt"
	"math/rand/v2"

	service "github.com/okian/podium/internal/app"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/validation"
)

// Kind mix of generated drags, in percent.
const (
	assignShare = 40
	moveShare   = 25
	swapShare   = 20

	autoPlaceOneIn = 10
	overwriteOneIn = 5
)

// Items returns the backlog seeded into the simulated ranking.
func Items(n int) []model.ItemSnapshot {
	items := make([]model.ItemSnapshot, n)
	for i := range items {
		items[i] = model.ItemSnapshot{
			ID:    fmt.Sprintf("item-%03d", i),
			Title: fmt.Sprintf("Item %d", i),
		}
	}
	return items
}

// Generate returns n random transfers over a ranking of size positions and
// the given items. The same seed yields the same drags.
func Generate(seed uint64, n, size int, items []model.ItemSnapshot) []service.TransferRequest {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	pos := func() *int {
		p := rng.IntN(size)
		return &p
	}

	drags := make([]service.TransferRequest, 0, n)
	for range n {
		roll := rng.IntN(100)
		switch {
		case roll < assignShare:
			d := service.TransferRequest{
				Kind:      string(validation.KindAssign),
				ItemID:    items[rng.IntN(len(items))].ID,
				Overwrite: rng.IntN(overwriteOneIn) == 0,
			}
			if rng.IntN(autoPlaceOneIn) == 0 {
				d.Source = string(model.SourceAuto)
			} else {
				d.To = pos()
			}
			drags = append(drags, d)
		case roll < assignShare+moveShare:
			drags = append(drags, service.TransferRequest{
				Kind:      string(validation.KindMove),
				From:      pos(),
				To:        pos(),
				Overwrite: rng.IntN(overwriteOneIn) == 0,
			})
		case roll < assignShare+moveShare+swapShare:
			drags = append(drags, service.TransferRequest{Kind: string(validation.KindSwap), From: pos(), To: pos()})
		default:
			drags = append(drags, service.TransferRequest{Kind: string(validation.KindRemove), From: pos()})
		}
	}
	return drags
}
