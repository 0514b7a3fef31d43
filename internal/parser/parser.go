package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/phonego-ryong/holyDayBot/internal/models"
	"github.com/phonego-ryong/holyDayBot/internal/validator"
)

var (
	nameRegex = regexp.MustCompile(`\[(.*?)\]`)
	dateRegex = regexp.MustCompile(`(\d{1,2})월 (\d{1,2})일`)
)

const (
	segmentDelimiter = "-"
	cancelKeyword    = "취소"
)

// KST is the timezone all day keys are anchored in.
var KST = time.FixedZone("KST", 9*60*60)

// Parser turns raw announcement text into an Announcement and derives the
// day-of / day-before keys for it. Keys are unix seconds of the configured
// anchor time-of-day in KST.
type Parser struct {
	anchorHour   int
	anchorMinute int
	validate     *validator.Validator
	now          func() time.Time
}

func New(anchorHour, anchorMinute int) *Parser {
	return &Parser{
		anchorHour:   anchorHour,
		anchorMinute: anchorMinute,
		validate:     validator.New(),
		now:          time.Now,
	}
}

// Parse extracts the announcement from raw message text.
//
// Returns models.ErrNotAnnouncement when the text does not split into exactly
// two dash-separated segments; such messages are unrelated chatter and must
// be ignored without logging an error. Missing name or date patterns abort
// the event with models.ErrNoNamePattern / models.ErrNoDatePattern.
func (p *Parser) Parse(text string) (*models.Announcement, error) {
	segments := strings.Split(text, segmentDelimiter)
	if len(segments) != 2 {
		return nil, models.ErrNotAnnouncement
	}

	nameMatch := nameRegex.FindStringSubmatch(segments[0])
	if nameMatch == nil {
		return nil, models.ErrNoNamePattern
	}

	dateMatch := dateRegex.FindStringSubmatch(segments[1])
	if dateMatch == nil {
		return nil, models.ErrNoDatePattern
	}
	month, err := strconv.Atoi(dateMatch[1])
	if err != nil {
		return nil, fmt.Errorf("invalid month %q: %w", dateMatch[1], err)
	}
	day, err := strconv.Atoi(dateMatch[2])
	if err != nil {
		return nil, fmt.Errorf("invalid day %q: %w", dateMatch[2], err)
	}

	a := &models.Announcement{
		Name:    nameMatch[1],
		RawText: segments[1],
		Cancel:  strings.Contains(segments[1], cancelKeyword),
		Month:   month,
		Day:     day,
	}
	if err := p.validate.Struct(a); err != nil {
		return nil, err
	}
	return a, nil
}

// DayKeys derives the day-of and day-before keys for the announcement,
// assuming the current year. The day-before construction relies on
// time.Date normalization, so day 1 rolls into the previous month.
func (p *Parser) DayKeys(a *models.Announcement) (dayOf, dayBefore int64) {
	year := p.now().In(KST).Year()
	dayOf = p.anchor(year, time.Month(a.Month), a.Day)
	dayBefore = p.anchor(year, time.Month(a.Month), a.Day-1)
	return dayOf, dayBefore
}

// TodayKey is today's date at the anchor time-of-day, used for the
// day-before suppression check.
func (p *Parser) TodayKey() int64 {
	now := p.now().In(KST)
	return p.anchor(now.Year(), now.Month(), now.Day())
}

func (p *Parser) anchor(year int, month time.Month, day int) int64 {
	return time.Date(year, month, day, p.anchorHour, p.anchorMinute, 0, 0, KST).Unix()
}
