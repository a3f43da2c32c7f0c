package livequery

// dispatch turns one change into the events it produces, one per query whose
// table matches and whose filter accepts the old or new image. Queries keep
// their list order.
func dispatch(change *Change, queries []Query) []Event {
	var events []Event
	for _, q := range queries {
		if q.Row.Schema != change.Schema || q.Row.Table != change.Table {
			continue
		}

		// Both images are evaluated so a row leaving the result set still
		// surfaces with New unset.
		var oldRow, newRow Row
		if change.Old != nil && q.Filter.Evaluate(change.Old) {
			oldRow = change.Old
		}
		if change.New != nil && q.Filter.Evaluate(change.New) {
			newRow = change.New
		}

		if oldRow == nil && newRow == nil {
			continue
		}

		events = append(events, Event{
			Type:  EventTypeChange,
			Query: q,
			Old:   oldRow,
			New:   newRow,
		})
	}
	return events
}
