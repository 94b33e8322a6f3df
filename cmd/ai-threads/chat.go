package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/go-go-golems/ai-threads/pkg/conversation"
	"github.com/go-go-golems/ai-threads/pkg/events"
	"github.com/go-go-golems/ai-threads/pkg/helpers"
	"github.com/go-go-golems/ai-threads/pkg/inference/session"
	"github.com/go-go-golems/ai-threads/pkg/models"
	"github.com/go-go-golems/ai-threads/pkg/store"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const chatTopic = "chat"

type chatOptions struct {
	threadID string
	model    string
	attach   []string
	retry    bool
	raw      bool
	verbose  bool
}

func newChatCommand() *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Start or continue a thread",
		Long: "Without a prompt, chat reads one prompt per line from stdin. " +
			"Ctrl-C stops the current response and keeps what was received. " +
			"Type /retry to resend a thread whose last response failed.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), opts, strings.Join(args, " "), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&opts.threadID, "thread", "t", "", "Continue this thread instead of starting a new one")
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "Model of a new thread (defaults to the preferred model)")
	cmd.Flags().StringSliceVarP(&opts.attach, "attach", "a", nil, "Attach an image or document to the first prompt")
	cmd.Flags().BoolVar(&opts.retry, "retry", false, "Resend the thread as it is")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "Print raw events as JSON")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "Verbose event router logging")
	return cmd
}

func runChat(ctx context.Context, opts *chatOptions, prompt string, in io.Reader, w io.Writer) error {
	routerOptions := []events.EventRouterOption{}
	if opts.verbose {
		routerOptions = append(routerOptions, events.WithVerbose(true))
	}
	router, err := events.NewEventRouter(routerOptions...)
	if err != nil {
		return errors.Wrap(err, "failed to create event router")
	}
	defer func() {
		_ = router.Close()
	}()

	sink := events.NewWatermillSink(helpers.CorrelationPublisherDecorator{Publisher: router.Publisher}, chatTopic)
	if opts.raw {
		router.AddHandler("chat", chatTopic, router.RawEventsPrinter(w))
	} else {
		router.AddHandler("chat", chatTopic, events.StepPrinterFunc("", w))
	}

	a, err := newApp(ctx, session.WithEventSinks(sink))
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("Could not close database")
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return router.Run(ctx)
	})
	eg.Go(func() error {
		defer cancel()
		<-router.Running()

		unsubscribe := a.store.Subscribe(renamePublisher(sink))
		defer func() {
			// naming requests still in flight publish through the router
			a.store.Wait()
			unsubscribe()
		}()

		c := &chatter{app: a, opts: opts, threadID: opts.threadID}
		if prompt != "" || opts.retry {
			return c.send(ctx, prompt, opts.attach)
		}
		return c.loop(ctx, in, w)
	})

	return eg.Wait()
}

// renamePublisher announces thread name changes on the event bus.
func renamePublisher(sink events.EventSink) store.Listener {
	return func(old, new store.State) {
		for id, t := range new.Threads {
			o := old.Threads[id]
			if t == nil || o == nil || o.Name == t.Name {
				continue
			}
			_ = sink.PublishEvent(events.NewThreadUpdatedEvent(events.EventMetadata{
				ID:       uuid.New(),
				ThreadID: id,
			}, t.Name))
		}
	}
}

type chatter struct {
	app      *app
	opts     *chatOptions
	threadID string
}

func (c *chatter) loop(ctx context.Context, in io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(in)
	attachments := c.opts.attach
	for {
		if _, err := fmt.Fprint(w, "> "); err != nil {
			return err
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/retry":
			if err := c.resend(ctx); err != nil {
				log.Warn().Err(err).Msg("Could not resend thread")
			}
			continue
		}
		if err := c.send(ctx, line, attachments); err != nil {
			return err
		}
		attachments = nil
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *chatter) send(ctx context.Context, prompt string, attach []string) error {
	if c.opts.retry && prompt == "" {
		return c.resend(ctx)
	}

	model := models.ModelID(c.opts.model)
	if c.threadID != "" {
		t, ok := c.app.store.Thread(c.threadID)
		if !ok {
			return errors.Wrap(session.ErrThreadNotFound, c.threadID)
		}
		model = t.Model
	} else if model == "" {
		model = c.app.store.GetState().Preferences.DefaultModel
		if model == "" {
			model = c.app.settings.DefaultModel
		}
	}

	msg, err := buildUserMessage(prompt, attach, model)
	if err != nil {
		return err
	}

	var x *session.Execution
	if c.threadID == "" {
		c.threadID, x, err = c.app.engine.Start(ctx, msg, model)
	} else {
		x, err = c.app.engine.Submit(ctx, c.threadID, &msg)
	}
	if err != nil {
		return err
	}
	log.Info().Str("thread_id", c.threadID).Msg("Sending")
	c.wait(ctx, x)
	return nil
}

func (c *chatter) resend(ctx context.Context) error {
	if c.threadID == "" {
		return errors.New("--thread is required to resend")
	}
	x, err := c.app.engine.Submit(ctx, c.threadID, nil)
	if err != nil {
		return err
	}
	c.wait(ctx, x)
	return nil
}

// wait blocks until x finished. An interrupt stops the response without
// ending the chat.
func (c *chatter) wait(ctx context.Context, x *session.Execution) {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	go func() {
		select {
		case <-sigCtx.Done():
			x.Cancel()
		case <-x.Done():
		}
	}()
	res := x.Wait()
	log.Debug().
		Str("thread_id", x.ThreadID).
		Str("outcome", string(res.Outcome)).
		Str("failure", string(res.Failure)).
		Msg("Response finished")
}

func buildUserMessage(prompt string, attach []string, model models.ModelID) (conversation.Message, error) {
	meta, err := models.Lookup(model)
	if err != nil {
		return conversation.Message{}, err
	}
	blocks := make([]conversation.ContentBlock, 0, len(attach))
	for _, path := range attach {
		b, err := conversation.BlockFromFile(path, meta.SupportsDocs)
		if err != nil {
			return conversation.Message{}, err
		}
		blocks = append(blocks, b)
	}
	return conversation.NewUserMessage(prompt, blocks...), nil
}
