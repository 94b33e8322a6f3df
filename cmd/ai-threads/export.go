package main

import (
	"fmt"
	"strings"

	"github.com/go-go-golems/ai-threads/pkg/conversation"
	"github.com/go-go-golems/ai-threads/pkg/inference/session"
	"github.com/go-go-golems/ai-threads/pkg/models"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tiktoken-go/tokenizer"
	"gopkg.in/yaml.v3"
)

type exportDocument struct {
	Threads []*conversation.Thread               `yaml:"threads"`
	Tokens  map[models.ModelID]models.TokenCount `yaml:"tokens,omitempty"`
	Cost    float64                              `yaml:"cost"`
}

func newExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export [thread-id]",
		Short: "Export one thread or the whole store as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			var doc interface{}
			if len(args) == 1 {
				t, ok := a.store.Thread(args[0])
				if !ok {
					return errors.Wrap(session.ErrThreadNotFound, args[0])
				}
				doc = t
			} else {
				st := a.store.GetState()
				doc = exportDocument{
					Threads: a.store.Threads(),
					Tokens:  st.Tokens,
					Cost:    st.Cost(),
				}
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(doc); err != nil {
				return errors.Wrap(err, "could not encode export")
			}
			return enc.Close()
		},
	}
}

func newTokensCommand() *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "tokens [thread-id]",
		Short: "Estimate the prompt size of a thread or a text",
		Long: "The estimate uses an OpenAI tokenizer. Billing always uses the " +
			"usage reported by the provider.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model := models.GPT4o
			if len(args) == 1 {
				a, err := newApp(cmd.Context())
				if err != nil {
					return err
				}
				defer func() { _ = a.Close() }()
				t, ok := a.store.Thread(args[0])
				if !ok {
					return errors.Wrap(session.ErrThreadNotFound, args[0])
				}
				model = t.Model
				parts := make([]string, 0, len(t.Messages))
				for _, m := range t.Messages {
					parts = append(parts, m.Text())
				}
				text = strings.Join(parts, "\n")
			}

			count, encoding, err := estimateTokens(model, text)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Model: %s\nEncoding: %s\nEstimated tokens: %d\n", model, encoding, count)
			return err
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "Text to estimate when no thread is given")
	return cmd
}

// estimateTokens counts tokens with the model's own encoding when the
// tokenizer knows it, cl100k_base otherwise.
func estimateTokens(model models.ModelID, text string) (int, string, error) {
	encoding := string(tokenizer.Cl100kBase)
	codec, err := tokenizer.ForModel(tokenizer.Model(model))
	if err != nil {
		codec, err = tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			return 0, "", errors.Wrap(err, "could not load tokenizer")
		}
	} else {
		encoding = "encoding of " + string(model)
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, "", errors.Wrap(err, "could not encode text")
	}
	return len(ids), encoding, nil
}
