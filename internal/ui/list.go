package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/dlx/internal/tasks"
)

var (
	_ list.Item = itemRow{}
)

// itemRow wraps [tasks.ItemResult] to implement [list.Item].
type itemRow struct {
	position int
	item     tasks.ItemResult
}

func (i itemRow) FilterValue() string { return i.item.Request.Describe() }
func (i itemRow) Title() string {
	return fmt.Sprintf("%d. %s", i.position, i.item.Request.Describe())
}
func (i itemRow) Description() string {
	desc := styles.status(i.item.Status).Render(string(i.item.Status))
	if i.item.Error != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.item.Error)
	}
	return desc
}

func resultItems(res *tasks.QueueResult) []list.Item {
	items := make([]list.Item, len(res.Items))
	for i, item := range res.Items {
		items[i] = itemRow{position: i + 1, item: item}
	}
	return items
}
