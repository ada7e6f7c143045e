package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/confinement-tools/mountns/internal/config"
	"github.com/confinement-tools/mountns/internal/dmverity"
	"github.com/confinement-tools/mountns/internal/inspect"
	"github.com/confinement-tools/mountns/internal/log"
	"github.com/confinement-tools/mountns/internal/mountinfo"
	"github.com/confinement-tools/mountns/internal/systemd"
	"github.com/confinement-tools/mountns/internal/version"
)

func main() {
	cmd := &cli.Command{
		Name:  "mountns",
		Usage: "Inspect the mount namespace before building a sandbox",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "mountinfo",
				Aliases: []string{"m"},
				Usage:   "Mountinfo table to inspect (default: the calling process's)",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Configuration file path",
				Value:   config.DefaultConfigPath,
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
			&cli.BoolFlag{
				Name:    "version",
				Aliases: []string{"V"},
				Usage:   "Print version information",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "Print the mount table in source order",
				Action: runList,
			},
			{
				Name:      "check",
				Usage:     "Check whether a path can host a sandbox",
				ArgsUsage: "PATH",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "skip-systemd",
						Usage: "Do not ask systemd about mount units",
					},
				},
				Action: runCheck,
			},
			{
				Name:      "root-hash",
				Usage:     "Compute the dm-verity root hash for a device pair",
				ArgsUsage: "DATA_DEVICE HASH_DEVICE",
				Action:    runRootHash,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Bool("version") {
				fmt.Println(version.String())
				return nil
			}
			return cli.ShowAppHelp(cmd)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the config file and merges CLI flags over it
func setup(cmd *cli.Command) (*config.Config, error) {
	log.Setup(cmd.Bool("verbose"))

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cfg.Merge(cmd.String("mountinfo"), "")
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func runList(ctx context.Context, cmd *cli.Command) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	table, err := mountinfo.Load(cfg.MountinfoPath)
	if err != nil {
		return err
	}

	log.Debug("mount table loaded", "path", cfg.MountinfoPath, "entries", table.Len())

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPARENT\tDEV\tMOUNTPOINT\tFSTYPE\tSOURCE\tOPTIONS\tPROPAGATION")
	for e := table.First(); e != nil; e = e.Next() {
		fmt.Fprintf(w, "%d\t%d\t%d:%d\t%s\t%s\t%s\t%s\t%s\n",
			e.MountID, e.ParentID, e.DevMajor, e.DevMinor,
			e.MountDir, e.FsType, e.MountSource, e.MountOpts,
			propagationLabel(inspect.DecodePropagation(e)))
	}
	return w.Flush()
}

func propagationLabel(p inspect.Propagation) string {
	switch {
	case p.Shared() && p.MasterPeerGroup != 0:
		return fmt.Sprintf("shared:%d,master:%d", p.SharedPeerGroup, p.MasterPeerGroup)
	case p.Shared():
		return fmt.Sprintf("shared:%d", p.SharedPeerGroup)
	case p.Slave():
		return fmt.Sprintf("master:%d", p.MasterPeerGroup)
	case p.Unbindable:
		return "unbindable"
	default:
		return "private"
	}
}

func runCheck(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().Get(0)
	if path == "" {
		return fmt.Errorf("usage: mountns check PATH")
	}

	cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	table, err := mountinfo.Load(cfg.MountinfoPath)
	if err != nil {
		return err
	}

	checker := inspect.NewChecker(cfg.UnsafeFsTypes...)
	if err := checker.Check(table, path); err != nil {
		return err
	}

	entry := inspect.EntryForPath(table, path)
	fmt.Printf("path: %s\n", path)
	fmt.Printf("mount: %s (%s on %s)\n", entry.MountDir, entry.FsType, entry.MountSource)
	fmt.Printf("propagation: %s\n", propagationLabel(inspect.DecodePropagation(entry)))

	if !cmd.Bool("skip-systemd") {
		reportMountUnit(entry.MountDir)
	}

	return nil
}

// reportMountUnit is best-effort: a missing system bus only downgrades the
// report, it does not fail the check.
func reportMountUnit(mountDir string) {
	client, err := systemd.NewClient()
	if err != nil {
		log.Warn("cannot reach systemd", "error", err)
		return
	}
	defer func() { _ = client.Close() }()

	unit, err := client.UnitForMountPoint(mountDir)
	switch {
	case errors.Is(err, systemd.ErrNoUnit):
		fmt.Println("systemd unit: none")
	case err != nil:
		log.Warn("mount unit lookup failed", "mount", mountDir, "error", err)
	default:
		fmt.Printf("systemd unit: %s\n", unit)
	}
}

func runRootHash(ctx context.Context, cmd *cli.Command) error {
	dataDevice := cmd.Args().Get(0)
	hashDevice := cmd.Args().Get(1)
	if dataDevice == "" || hashDevice == "" {
		return fmt.Errorf("usage: mountns root-hash DATA_DEVICE HASH_DEVICE")
	}

	cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	formatter := dmverity.NewFormatter(cfg.VeritysetupPath)
	info, err := formatter.Format(dataDevice, hashDevice)
	if err != nil {
		return err
	}

	fmt.Println(info.RootHash)
	return nil
}
