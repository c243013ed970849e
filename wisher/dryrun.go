package wisher

import (
	"context"
	"fmt"
)

// DryRun fetches the special days and prints the generated DM wish without
// touching Discord.
func (w *Wisher) DryRun(ctx context.Context) Report {
	rep := Report{Kind: "holiday", Date: w.opts.Date, Test: true}
	_, names := w.specialDays(ctx)
	if len(names) == 0 {
		fmt.Fprintln(w.opts.Out, "No globally relevant holiday/special day found (based on configured calendars).")
		return rep
	}
	rep.SpecialDays = names

	wish := w.writer.DMWish(ctx, names, w.opts.Date)
	fmt.Fprintln(w.opts.Out, "--- Special day(s) ---")
	for _, n := range names {
		fmt.Fprintf(w.opts.Out, "- %s\n", n)
	}
	fmt.Fprintln(w.opts.Out, "\n--- Generated wish ---")
	fmt.Fprintln(w.opts.Out, wish)
	return rep
}

// DailyDryRun prints the plain time-of-day greeting without touching Discord.
func (w *Wisher) DailyDryRun(ctx context.Context) Report {
	tod := w.timeOfDay()
	wish := w.writer.Greeting(ctx, tod)
	fmt.Fprintf(w.opts.Out, "--- Good %s ---\n%s\n", tod, wish)
	return Report{Kind: "daily", Date: w.opts.Date, TimeOfDay: tod, Test: true}
}
