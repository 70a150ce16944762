package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/legalwise/configs"
	"github.com/Aman-CERP/legalwise/internal/config"
	lwerrors "github.com/Aman-CERP/legalwise/internal/errors"
	"github.com/Aman-CERP/legalwise/internal/output"
)

func newInitCmd(root *rootOptions) *cobra.Command {
	var user bool
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented configuration file",
		Long: `Init writes .legalwise.yaml into the project directory, or with --user the
machine-wide config at ~/.config/legalwise/config.yaml.

Existing files are left alone unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := filepath.Join(root.dir, config.ProjectConfigName)
			template := configs.ProjectConfigTemplate
			if user {
				path = config.GetUserConfigPath()
				template = configs.UserConfigTemplate
			}
			return writeTemplate(cmd, path, template, force)
		},
	}

	cmd.Flags().BoolVar(&user, "user", false, "Write the user config instead of the project config")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}

func writeTemplate(cmd *cobra.Command, path, template string, force bool) error {
	out := output.New(cmd.OutOrStdout())

	if _, err := os.Stat(path); err == nil && !force {
		out.Warningf("%s already exists (use --force to overwrite)", path)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return lwerrors.New(lwerrors.ErrCodeFileNotFound, fmt.Sprintf("cannot create %s", filepath.Dir(path)), err)
	}
	if err := os.WriteFile(path, []byte(template), 0o644); err != nil {
		return lwerrors.New(lwerrors.ErrCodeFileNotFound, fmt.Sprintf("cannot write %s", path), err)
	}

	out.Successf("Wrote %s", path)
	return nil
}
