package alert

// TriggerDiff is the set of writes that brings stored triggers in line with a submission.
type TriggerDiff struct {
	// Create holds new triggers, without IDs.
	Create []Trigger
	// Update holds stored triggers whose fields or position changed.
	Update []Trigger
	Delete []Trigger
	// Final is every surviving trigger in position order.
	Final []Trigger
}

// Empty reports whether applying the diff writes nothing.
func (d TriggerDiff) Empty() bool {
	return len(d.Create) == 0 && len(d.Update) == 0 && len(d.Delete) == 0
}

// DiffTriggers compares stored triggers, in position order, with submitted ones positionally.
//
// The i-th submitted trigger edits the i-th stored trigger, or is new when no
// stored trigger is at that position. An empty submitted trigger deletes the
// stored trigger at its position and is otherwise skipped. Stored triggers
// beyond the submitted ones are deleted. Survivors are renumbered from zero
// in submission order.
func DiffTriggers(existing, submitted []Trigger) TriggerDiff {
	var d TriggerDiff
	pos := 0
	for i, s := range submitted {
		if i < len(existing) {
			e := existing[i]
			if s.Empty() {
				d.Delete = append(d.Delete, e)
				continue
			}
			u := e
			u.Position = pos
			u.Name = s.Name
			u.ValueSource = s.ValueSource
			u.Value = s.Value
			u.Compare = s.Compare
			if !u.sameFields(e) {
				d.Update = append(d.Update, u)
			}
			d.Final = append(d.Final, u)
			pos++
			continue
		}
		if s.Empty() {
			continue
		}
		c := s
		c.ID = ""
		c.Position = pos
		d.Create = append(d.Create, c)
		d.Final = append(d.Final, c)
		pos++
	}
	if len(submitted) < len(existing) {
		d.Delete = append(d.Delete, existing[len(submitted):]...)
	}
	return d
}
