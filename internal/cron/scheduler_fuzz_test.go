package cron

import "testing"

func FuzzScheduleParser(f *testing.F) {
	// Defaults and overrides the maintenance jobs actually produce.
	f.Add("@every 1h")
	f.Add("@every 5m0s")
	f.Add("*/5 * * * *")
	f.Add("0 3 * * *")
	f.Add("@every -1s")
	f.Add("61 * * * *")
	f.Add("not a schedule")
	f.Add("")

	f.Fuzz(func(_ *testing.T, expr string) {
		// Parsing must never panic; rejection is fine.
		_, _ = scheduleParser.Parse(expr)
	})
}
