package slack

import (
	"github.com/phonego-ryong/holyDayBot/internal/models"
)

// Block Kit structures. Composed here and passed through to Slack opaque;
// nothing downstream interprets them.

type TextObject struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type Block struct {
	Type string      `json:"type"`
	Text *TextObject `json:"text,omitempty"`
}

const (
	dayOfBanner     = "오늘의 휴가자를 발견했어요!!"
	dayBeforeBanner = "내일 휴가자 있을 것 같은 예감이 듭니다"
	bannerEmoji     = " :ghost2:"
)

// RosterMessage composes the fallback text and block list for a roster post:
// a header block carrying the table's banner, then one section block per
// roster entry in stored order.
func RosterMessage(table models.Table, entries []string) (string, []Block) {
	banner := dayOfBanner
	if table == models.TableDayBefore {
		banner = dayBeforeBanner
	}

	blocks := []Block{{
		Type: "header",
		Text: &TextObject{Type: "plain_text", Text: banner + bannerEmoji, Emoji: true},
	}}
	for _, entry := range entries {
		blocks = append(blocks, Block{
			Type: "section",
			Text: &TextObject{Type: "mrkdwn", Text: entry},
		})
	}
	return banner, blocks
}
