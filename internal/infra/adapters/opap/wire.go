package opap

import (
	"github.com/coachpo/kino/errs"
	"github.com/coachpo/kino/internal/domain/kino"
)

type drawPage struct {
	Content    []drawRecord `json:"content"`
	Last       bool         `json:"last"`
	TotalPages int          `json:"totalPages"`
	Number     int          `json:"number"`
}

type drawRecord struct {
	DrawID         int64          `json:"drawId"`
	DrawTime       int64          `json:"drawTime"`
	WinningNumbers winningNumbers `json:"winningNumbers"`
}

type winningNumbers struct {
	List  []int `json:"list"`
	Bonus []int `json:"bonus"`
}

// toBatch converts a decoded page into a validated batch. The bonus number is
// the first entry of the bonus list when the service reports one.
func toBatch(key kino.PageKey, page drawPage) (kino.Batch, error) {
	if len(page.Content) == 0 {
		return kino.Batch{}, errs.New("opap", errs.CodeNotFound,
			errs.WithKey(key.DateString(), key.Page), errs.WithMessage("no draws for page"))
	}
	if len(page.Content) > kino.DrawsPerPage {
		return kino.Batch{}, errs.New("opap", errs.CodeParse,
			errs.WithKey(key.DateString(), key.Page), errs.WithMessage("page holds more draws than expected"))
	}
	draws := make([]kino.Draw, 0, len(page.Content))
	for slot, record := range page.Content {
		bonus := 0
		if len(record.WinningNumbers.Bonus) > 0 {
			bonus = record.WinningNumbers.Bonus[0]
		}
		draw, err := kino.NewDraw(record.DrawID, slot, record.WinningNumbers.List, bonus)
		if err != nil {
			return kino.Batch{}, errs.New("opap", errs.CodeParse,
				errs.WithKey(key.DateString(), key.Page), errs.WithMessage("invalid draw in response"), errs.WithCause(err))
		}
		draws = append(draws, draw)
	}
	last := page.Last || (page.TotalPages > 0 && page.Number+1 >= page.TotalPages)
	return kino.Batch{Key: key, Draws: draws, Last: last}, nil
}
