package models

import "sort"

// Ball describes one ball on the table. Full reports the solid/striped split
// and is meaningless for the cue ball.
type Ball struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Full  bool   `json:"full,omitempty"`
}

// Balls is the fixed 8-ball table: the cue ball plus balls 1..15.
var Balls = []Ball{
	{ID: "cue", Name: "Kijátszó golyó", Color: "white"},
	{ID: "1", Name: "1-es golyó", Color: "yellow", Full: true},
	{ID: "2", Name: "2-es golyó", Color: "blue", Full: true},
	{ID: "3", Name: "3-as golyó", Color: "red", Full: true},
	{ID: "4", Name: "4-es golyó", Color: "purple", Full: true},
	{ID: "5", Name: "5-ös golyó", Color: "orange", Full: true},
	{ID: "6", Name: "6-os golyó", Color: "green", Full: true},
	{ID: "7", Name: "7-es golyó", Color: "maroon", Full: true},
	{ID: "8", Name: "8-as golyó", Color: "black", Full: true},
	{ID: "9", Name: "9-es golyó", Color: "yellow"},
	{ID: "10", Name: "10-es golyó", Color: "blue"},
	{ID: "11", Name: "11-es golyó", Color: "red"},
	{ID: "12", Name: "12-es golyó", Color: "purple"},
	{ID: "13", Name: "13-as golyó", Color: "orange"},
	{ID: "14", Name: "14-es golyó", Color: "green"},
	{ID: "15", Name: "15-ös golyó", Color: "maroon"},
}

// BallsOnTable replays the frame's balls_potted events and returns the ids of
// object balls still on the table, in table order.
func (f *Frame) BallsOnTable() []string {
	onTable := make(map[string]bool, len(Balls)-1)
	order := make([]string, 0, len(Balls)-1)
	for _, b := range Balls {
		if b.ID == "cue" {
			continue
		}
		onTable[b.ID] = true
		order = append(order, b.ID)
	}

	for _, ev := range f.eventsInOrder() {
		if ev.EventType != EventBallsPotted {
			continue
		}
		for _, id := range ev.BallIDs {
			onTable[id] = false
		}
	}

	remaining := make([]string, 0, len(order))
	for _, id := range order {
		if onTable[id] {
			remaining = append(remaining, id)
		}
	}
	return remaining
}

// EventsAsTurns splits the frame's events into turns, a new turn starting at
// each next_player event. Works mid-frame as well as after the frame.
func (f *Frame) EventsAsTurns() [][]MatchEvent {
	var turns [][]MatchEvent
	var current []MatchEvent
	for _, ev := range f.eventsInOrder() {
		if ev.EventType == EventNextPlayer && len(current) > 0 {
			turns = append(turns, current)
			current = nil
		}
		current = append(current, ev)
	}
	if len(current) > 0 {
		turns = append(turns, current)
	}
	return turns
}

func (f *Frame) eventsInOrder() []MatchEvent {
	evs := append([]MatchEvent(nil), f.Events...)
	sort.SliceStable(evs, func(i, j int) bool { return EventLess(evs[i], evs[j]) })
	return evs
}
