package events

import (
	"fmt"
	"io"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
)

// StepPrinterFunc prints streamed responses to w as they arrive.
func StepPrinterFunc(name string, w io.Writer) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		defer msg.Ack()

		e, err := NewEventFromJson(msg.Payload)
		if err != nil {
			return err
		}

		switch p_ := e.(type) {
		case *EventPartialCompletionStart:
			if name != "" {
				_, err = fmt.Fprintf(w, "\n%s: \n", name)
			}
		case *EventPartialCompletion:
			_, err = fmt.Fprintf(w, "%s", p_.Delta)
		case *EventFinal:
			if !strings.HasSuffix(p_.Text, "\n") {
				_, err = fmt.Fprintf(w, "\n")
			}
		case *EventInterrupt:
			_, err = fmt.Fprintf(w, "\n[stopped]\n")
		case *EventError:
			_, err = fmt.Fprintf(w, "\n[%s] %s\n", p_.FailureClass, p_.ErrorString)
		case *EventThreadUpdated:
			_, err = fmt.Fprintf(w, "[thread: %s]\n", p_.Name)
		}
		return err
	}
}
