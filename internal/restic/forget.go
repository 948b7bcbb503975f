package restic

import "context"

// ForgetOptions maps to "restic forget" flags. Nil and empty fields are
// omitted from the command line.
type ForgetOptions struct {
	KeepLast    *int
	KeepHourly  *int
	KeepDaily   *int
	KeepWeekly  *int
	KeepMonthly *int
	KeepYearly  *int

	KeepWithin        string
	KeepWithinHourly  string
	KeepWithinDaily   string
	KeepWithinWeekly  string
	KeepWithinMonthly string
	KeepWithinYearly  string
	KeepTags          []string

	GroupBy string
	Hosts   []string
	Tags    []string
	Paths   []string

	UnsafeAllowRemoveAll bool
	Compact              bool
	DryRun               bool

	Prune               bool
	MaxUnused           string
	MaxRepackSize       string
	RepackCacheableOnly bool
	RepackSmall         bool
	RepackUncompressed  bool
	RepackSmallerThan   string

	AdditionalFlags []string
}

// Args renders the options into a forget command line.
func (o ForgetOptions) Args() *Args {
	args := NewArgs("forget")

	keep := []struct {
		name  string
		value *int
	}{
		{"keep-last", o.KeepLast},
		{"keep-hourly", o.KeepHourly},
		{"keep-daily", o.KeepDaily},
		{"keep-weekly", o.KeepWeekly},
		{"keep-monthly", o.KeepMonthly},
		{"keep-yearly", o.KeepYearly},
	}
	for _, k := range keep {
		if k.value != nil {
			args.FlagValue(k.name, *k.value)
		}
	}

	within := []struct{ name, value string }{
		{"keep-within", o.KeepWithin},
		{"keep-within-hourly", o.KeepWithinHourly},
		{"keep-within-daily", o.KeepWithinDaily},
		{"keep-within-weekly", o.KeepWithinWeekly},
		{"keep-within-monthly", o.KeepWithinMonthly},
		{"keep-within-yearly", o.KeepWithinYearly},
		{"group-by", o.GroupBy},
		{"max-unused", o.MaxUnused},
		{"max-repack-size", o.MaxRepackSize},
		{"repack-smaller-than", o.RepackSmallerThan},
	}
	for _, w := range within {
		if w.value != "" {
			args.FlagValue(w.name, w.value)
		}
	}

	for _, t := range o.KeepTags {
		args.FlagValue("keep-tag", t)
	}
	for _, h := range o.Hosts {
		args.FlagValue("host", h)
	}
	for _, t := range o.Tags {
		args.FlagValue("tag", t)
	}
	for _, p := range o.Paths {
		args.FlagValue("path", p)
	}

	switches := []struct {
		name string
		on   bool
	}{
		{"unsafe-allow-remove-all", o.UnsafeAllowRemoveAll},
		{"compact", o.Compact},
		{"dry-run", o.DryRun},
		{"prune", o.Prune},
		{"repack-cacheable-only", o.RepackCacheableOnly},
		{"repack-small", o.RepackSmall},
		{"repack-uncompressed", o.RepackUncompressed},
	}
	for _, s := range switches {
		if s.on {
			args.Flag(s.name)
		}
	}

	AddFlags(args, o.AdditionalFlags)
	return args
}

// Forget removes snapshots according to the retention policy, pruning
// unreferenced data when opts.Prune is set.
func (c *Client) Forget(ctx context.Context, opts ForgetOptions) error {
	args := opts.Args()
	return c.Exec(ctx, args, func(line Line) {
		c.logger.Debug("restic: forget", "stream", line.Origin.String(), "line", line.Text)
	})
}
