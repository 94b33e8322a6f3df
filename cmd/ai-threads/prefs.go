package main

import (
	"fmt"

	"github.com/go-go-golems/ai-threads/pkg/models"
	"github.com/go-go-golems/ai-threads/pkg/store"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newPrefsCommand() *cobra.Command {
	var (
		useProfile      bool
		profile         string
		accessKeyID     string
		secretAccessKey string
		openAIKey       string
		defaultModel    string
	)

	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change the stored preferences",
		Long: "Credentials come either from a shared AWS profile (--use-profile) " +
			"or from a static access key pair. Secrets are never printed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if defaultModel != "" {
				if _, err := models.Lookup(models.ModelID(defaultModel)); err != nil {
					return err
				}
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			flags := cmd.Flags()
			a.store.UpdatePreferences(func(p *store.Preferences) {
				if flags.Changed("use-profile") {
					p.UseCredentialProfile = useProfile
				}
				if flags.Changed("profile") {
					p.CredentialProfile = profile
				}
				if flags.Changed("access-key-id") {
					p.AccessKeyID = accessKeyID
				}
				if flags.Changed("secret-access-key") {
					p.SecretAccessKey = secretAccessKey
				}
				if flags.Changed("openai-api-key") {
					p.OpenAIKey = openAIKey
				}
				if flags.Changed("default-model") {
					p.DefaultModel = models.ModelID(defaultModel)
				}
			})

			p := a.store.GetState().Preferences
			out, err := yaml.Marshal(p)
			if err != nil {
				return err
			}
			if _, err := cmd.OutOrStdout().Write(out); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "secret-access-key set: %t\nopenai-api-key set: %t\n",
				p.SecretAccessKey != "", p.OpenAIKey != "")
			return err
		},
	}

	cmd.Flags().BoolVar(&useProfile, "use-profile", false, "Use a shared AWS credentials profile")
	cmd.Flags().StringVar(&profile, "profile", "", "Name of the shared profile (default \"default\")")
	cmd.Flags().StringVar(&accessKeyID, "access-key-id", "", "Static AWS access key id")
	cmd.Flags().StringVar(&secretAccessKey, "secret-access-key", "", "Static AWS secret access key")
	cmd.Flags().StringVar(&openAIKey, "openai-api-key", "", "OpenAI API key, overrides the key stored in Secrets Manager")
	cmd.Flags().StringVar(&defaultModel, "default-model", "", "Model used for new threads")
	return cmd
}
