package bridge

import (
	"fmt"
	"strings"
	"time"

	"github.com/papercomputeco/cadence/pkg/progress"
)

// BoundedContext is the learner state handed to the AI capability. Its size
// is bounded by MaxContextItems and MaxHistory regardless of how many items
// the learner has.
type BoundedContext struct {
	UserID      string        `json:"user_id"`
	GeneratedAt time.Time     `json:"generated_at"`
	TotalItems  int           `json:"total_items"`
	DueNow      int           `json:"due_now"`
	Items       []ContextItem `json:"items"`
}

// ContextItem is one near-due item with its recent outcomes, oldest first.
type ContextItem struct {
	ItemID          string                   `json:"item_id"`
	ContentRef      string                   `json:"content_ref,omitempty"`
	DifficultyClass progress.DifficultyClass `json:"difficulty_class"`
	EaseFactor      float64                  `json:"ease_factor"`
	DueAt           time.Time                `json:"due_at"`
	Overdue         bool                     `json:"overdue"`
	RecentOutcomes  []progress.Outcome       `json:"recent_outcomes,omitempty"`
}

// String renders the context as the plain-text block placed in the system
// prompt.
func (bc *BoundedContext) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Learner %s has %d item(s), %d due now.\n", bc.UserID, bc.TotalItems, bc.DueNow)
	if len(bc.Items) == 0 {
		b.WriteString("No items are scheduled yet.\n")
		return b.String()
	}

	b.WriteString("Items nearest due:\n")
	for _, it := range bc.Items {
		name := it.ItemID
		if it.ContentRef != "" {
			name = fmt.Sprintf("%s (%s)", it.ItemID, it.ContentRef)
		}
		status := "upcoming"
		if it.Overdue {
			status = "due"
		}
		fmt.Fprintf(&b, "- %s: %s, ease %.2f, %s", name, it.DifficultyClass, it.EaseFactor, status)
		if len(it.RecentOutcomes) > 0 {
			outcomes := make([]string, len(it.RecentOutcomes))
			for i, o := range it.RecentOutcomes {
				outcomes[i] = string(o)
			}
			fmt.Fprintf(&b, ", recent: %s", strings.Join(outcomes, " "))
		}
		b.WriteString("\n")
	}
	return b.String()
}
