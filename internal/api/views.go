package api

import (
	"time"

	"example.com/timelog/internal/domain"
	"example.com/timelog/internal/live"
	"example.com/timelog/internal/projection"
)

// IntervalView exposes a stored interval.
type IntervalView struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Tags      []string   `json:"tags"`
	StartAt   time.Time  `json:"start_at"`
	EndAt     *time.Time `json:"end_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ListIntervalsResponse packages list results.
type ListIntervalsResponse struct {
	Items      []IntervalView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// OverlapView marks a schedule conflict on an entry.
type OverlapView struct {
	PeerID string `json:"peer_id"`
}

// EntryView is one rendered row of a day: a group of one or more intervals.
type EntryView struct {
	Title          string                 `json:"title"`
	Tags           []string               `json:"tags"`
	Count          int                    `json:"count"`
	TotalSeconds   int64                  `json:"total_seconds"`
	Total          string                 `json:"total"`
	EarliestStart  time.Time              `json:"earliest_start"`
	LatestEnd      *time.Time             `json:"latest_end,omitempty"`
	HasActive      bool                   `json:"has_active"`
	EndsOnLaterDay bool                   `json:"ends_on_later_day"`
	Overlap        *OverlapView           `json:"overlap,omitempty"`
	MemberOverlaps map[string]OverlapView `json:"member_overlaps,omitempty"`
}

// DayView is one calendar day of the weekly view.
type DayView struct {
	Date         string      `json:"date"`
	TotalSeconds int64       `json:"total_seconds"`
	Total        string      `json:"total"`
	Entries      []EntryView `json:"entries"`
}

// CurrentView is the running interval and its elapsed time.
type CurrentView struct {
	Interval       IntervalView `json:"interval"`
	ElapsedSeconds int64        `json:"elapsed_seconds"`
	Elapsed        string       `json:"elapsed"`
}

// WeekViewResponse is the assembled weekly projection.
type WeekViewResponse struct {
	WeekStart    string       `json:"week_start"`
	WeekEnd      string       `json:"week_end"`
	TotalSeconds int64        `json:"total_seconds"`
	Total        string       `json:"total"`
	Days         []DayView    `json:"days"`
	Current      *CurrentView `json:"current,omitempty"`
	AsOf         time.Time    `json:"as_of"`
}

// GroupMembersResponse lists the intervals behind one collapsed entry.
type GroupMembersResponse struct {
	Items []IntervalView `json:"items"`
}

// DailyTotalsResponse reports tracked time per local calendar day.
type DailyTotalsResponse struct {
	Days []DailyTotalView `json:"days"`
}

// DailyTotalView is one day's split-based total.
type DailyTotalView struct {
	Date         string `json:"date"`
	TotalSeconds int64  `json:"total_seconds"`
	Total        string `json:"total"`
}

// LiveSnapshotResponse carries the coordinator's latest published view.
type LiveSnapshotResponse struct {
	Seq     uint64           `json:"seq"`
	Trigger string           `json:"trigger"`
	State   string           `json:"state"`
	View    WeekViewResponse `json:"view"`
}

func toIntervalView(iv domain.TimeInterval) IntervalView {
	tags := iv.Tags
	if tags == nil {
		tags = []string{}
	}
	return IntervalView{
		ID:        iv.ID,
		Title:     iv.Title,
		Tags:      tags,
		StartAt:   iv.StartAt,
		EndAt:     iv.EndAt,
		CreatedAt: iv.CreatedAt,
		UpdatedAt: iv.UpdatedAt,
	}
}

func toEntryView(entry projection.Entry) EntryView {
	g := entry.Group
	view := EntryView{
		Title:          g.Key.Title,
		Tags:           g.Key.TagList(),
		Count:          len(g.Members),
		TotalSeconds:   int64(g.Total / time.Second),
		Total:          projection.FormatHMS(g.Total),
		EarliestStart:  g.EarliestStart,
		LatestEnd:      g.LatestEnd,
		HasActive:      g.HasActive,
		EndsOnLaterDay: entry.EndsOnLaterDay,
	}
	if entry.Annotation.HasWarning {
		view.Overlap = &OverlapView{PeerID: entry.Annotation.PeerID}
	}
	if len(entry.MemberAnnotations) > 0 {
		view.MemberOverlaps = make(map[string]OverlapView, len(entry.MemberAnnotations))
		for id, ann := range entry.MemberAnnotations {
			if ann.HasWarning {
				view.MemberOverlaps[id] = OverlapView{PeerID: ann.PeerID}
			}
		}
		if len(view.MemberOverlaps) == 0 {
			view.MemberOverlaps = nil
		}
	}
	return view
}

func toWeekView(v *projection.View) WeekViewResponse {
	resp := WeekViewResponse{
		WeekStart:    string(v.Week.Start),
		WeekEnd:      string(v.Week.End),
		TotalSeconds: int64(v.WeeklyTotal / time.Second),
		Total:        projection.FormatHMS(v.WeeklyTotal),
		Days:         make([]DayView, 0, len(v.Days)),
		AsOf:         v.AsOf,
	}
	for _, day := range v.Days {
		dayView := DayView{
			Date:         string(day.Day),
			TotalSeconds: int64(day.Total / time.Second),
			Total:        projection.FormatHMS(day.Total),
			Entries:      make([]EntryView, 0, len(day.Entries)),
		}
		for _, entry := range day.Entries {
			dayView.Entries = append(dayView.Entries, toEntryView(entry))
		}
		resp.Days = append(resp.Days, dayView)
	}
	if v.Current != nil {
		resp.Current = &CurrentView{
			Interval:       toIntervalView(v.Current.Interval),
			ElapsedSeconds: int64(v.Current.Elapsed / time.Second),
			Elapsed:        projection.FormatHMS(v.Current.Elapsed),
		}
	}
	return resp
}

func stateName(s live.State) string {
	switch s {
	case live.StateActive:
		return "active"
	case live.StateReconciling:
		return "reconciling"
	default:
		return "idle"
	}
}
