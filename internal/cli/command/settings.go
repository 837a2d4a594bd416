package command

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/respkv/internal/cli/config"
)

// SettingsCommand returns the commands that manage the CLI configuration.
func SettingsCommand() *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Manage the respkv-cli configuration file",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Print the effective configuration",
				Action: settingsShow,
			},
			{
				Name:   "path",
				Usage:  "Print the configuration file path",
				Action: settingsPath,
			},
			{
				Name:  "init",
				Usage: "Write the effective configuration to the configuration file",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "overwrite an existing file"},
				},
				Action: settingsInit,
			},
		},
	}
}

func configPath(c *cli.Context) string {
	if p := c.String("config"); p != "" {
		return p
	}
	return config.DefaultConfigPath()
}

func settingsShow(c *cli.Context) error {
	s, err := getSession(c)
	if err != nil {
		return err
	}
	return s.formatter().Format(s.out, s.cfg)
}

func settingsPath(c *cli.Context) error {
	s, err := getSession(c)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, configPath(c))
	return nil
}

func settingsInit(c *cli.Context) error {
	s, err := getSession(c)
	if err != nil {
		return err
	}
	path := configPath(c)
	if !c.Bool("force") {
		if _, err := os.Stat(path); err == nil {
			return cli.Exit(fmt.Sprintf("%s exists (use --force to overwrite)", path), 1)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	if err := config.Save(s.cfg, path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(s.out, "wrote %s\n", path)
	return nil
}
