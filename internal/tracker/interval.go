package tracker

import "time"

// contribution is the effective, deduplicated portion of a submission plus the
// session bookkeeping that accepting it implies.
type contribution struct {
	Start          time.Time
	End            time.Time
	Duration       int64 // milliseconds
	SessionStart   time.Time
	LongestSession int64 // milliseconds
}

// processInterval computes what a submission actually adds on top of the
// user's recorded state. It reports false when nothing new was coded, which
// callers treat as a successful no-op. Duplicate heartbeats and retried
// requests land here.
//
// The cheap path clips the effective start to the last processed update,
// which absorbs contiguous heartbeats from a single instance. The clipped
// interval is then checked against every entry in the 24h log, which catches
// overlapping submissions from concurrent instances and out-of-order retries.
func processInterval(u *User, sub Submission, cfg Config) (contribution, bool) {
	effStart := sub.Start
	if u.LastUpdated.After(effStart) {
		effStart = u.LastUpdated
	}
	effEnd := sub.End
	if !effEnd.After(effStart) {
		return contribution{}, false
	}

	for _, entry := range u.TimeLogs {
		if effStart.Before(entry.EndTime) && effEnd.After(entry.StartTime) {
			return contribution{}, false
		}
	}

	sessionStart := u.CurrentSessionStart
	longest := u.LongestSession

	switch {
	case u.LastUpdated.IsZero() || sessionStart.IsZero():
		// First submission ever: a fresh session with no prior duration.
		sessionStart = effStart
	case sub.Start.Sub(u.LastUpdated) > cfg.SessionGap:
		closed := u.LastUpdated.Sub(sessionStart).Milliseconds()
		if closed > longest {
			longest = closed
		}
		sessionStart = effStart
	}

	if running := effEnd.Sub(sessionStart).Milliseconds(); running > longest {
		longest = running
	}

	return contribution{
		Start:          effStart,
		End:            effEnd,
		Duration:       effEnd.Sub(effStart).Milliseconds(),
		SessionStart:   sessionStart,
		LongestSession: longest,
	}, true
}

// pruneLogs drops entries whose end time falls before the cutoff. The cutoff
// is measured from the submission being processed, not wall clock, so
// backfilled submissions cannot silently empty the log.
func pruneLogs(logs []LogEntry, cutoff time.Time) []LogEntry {
	kept := logs[:0:0]
	for _, entry := range logs {
		if !entry.EndTime.Before(cutoff) {
			kept = append(kept, entry)
		}
	}
	return kept
}

// dailyTotals recomputes the rolling-window totals from the pruned log: the
// overall sum and the per-language breakdown. Recomputation, rather than a
// running increment, keeps the figures exact after pruning.
func dailyTotals(logs []LogEntry) (int64, map[string]int64) {
	var total int64
	byLanguage := make(map[string]int64, 4)
	for _, entry := range logs {
		total += entry.Duration
		byLanguage[entry.Language] += entry.Duration
	}
	return total, byLanguage
}
