package cli

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/internal/service"
	"github.com/capitalize-ai/agent-chat/internal/store"
)

var (
	sendAgent    string
	sendThread   string
	sendNoStream bool
	sendFiles    []string
	sendNew      bool
)

var sendCmd = &cobra.Command{
	Use:   "send [message]",
	Short: "Send a message to an agent",
	Long: `Send a message to an agent in the project's active thread. A thread is
created when none is active. Streamed replies are printed as they arrive.

Examples:
  chatctl send -p proj -a planner "Summarize last week"
  chatctl send -p proj -a analyst --file report.csv "What stands out?"
  chatctl send -p proj -a planner --new "Start over"`,
	Args: cobra.ArbitraryArgs,
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVarP(&sendAgent, "agent", "a", os.Getenv("CHAT_AGENT_ID"), "agent id (or CHAT_AGENT_ID)")
	sendCmd.Flags().StringVarP(&sendThread, "thread", "t", "", "thread id (defaults to the active thread)")
	sendCmd.Flags().BoolVar(&sendNoStream, "no-stream", false, "wait for the full reply instead of streaming")
	sendCmd.Flags().StringSliceVarP(&sendFiles, "file", "f", nil, "attach a file (repeatable)")
	sendCmd.Flags().BoolVar(&sendNew, "new", false, "start a new thread")
}

func runSend(cmd *cobra.Command, args []string) error {
	if err := requireProject(); err != nil {
		return err
	}
	ctx := cmd.Context()

	if err := core.Threads.Load(ctx, projectID); err != nil {
		return fmt.Errorf("load threads: %w", err)
	}
	switch {
	case sendNew:
		core.Threads.SetActive(ctx, projectID, "")
	case sendThread != "":
		if _, ok := core.Store.Thread(sendThread); !ok {
			return fmt.Errorf("thread %s not found in project %s", sendThread, projectID)
		}
		core.Threads.SetActive(ctx, projectID, sendThread)
	}

	files, err := readAttachments(sendFiles)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printer := newStreamPrinter(out)
	unsubscribe := core.Store.Subscribe(func(c store.Change) {
		if c.Kind != store.ChangeMessages {
			return
		}
		printer.update(core.Store.Messages(c.ThreadID))
	})
	defer unsubscribe()

	threadID, err := core.Controller.SendMessage(ctx, projectID, sendAgent, strings.Join(args, " "), service.SendOptions{
		Stream:       !sendNoStream,
		IncludeFiles: len(files) > 0,
		Files:        files,
	})
	if err != nil {
		return err
	}

	messages := core.Store.Messages(threadID)
	if n := len(messages); n > 0 {
		last := messages[n-1]
		if last.Error != "" {
			fmt.Fprintln(out)
			return fmt.Errorf("%s", last.Error)
		}
		printer.finish(last)
	}
	if msg := core.Gate.StatusMessage(); msg != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "\n%s\n", msg)
	}
	return nil
}

// streamPrinter writes the growing content of a loading placeholder as
// deltas, then the final reply if it differs from what was printed.
type streamPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	id      string
	printed string
}

func newStreamPrinter(out io.Writer) *streamPrinter {
	return &streamPrinter{out: out}
}

func (p *streamPrinter) update(messages []model.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(messages)
	if n == 0 || !messages[n-1].IsLoading {
		return
	}
	m := messages[n-1]
	if m.ID != p.id {
		p.id, p.printed = m.ID, ""
	}
	if strings.HasPrefix(m.Content, p.printed) {
		fmt.Fprint(p.out, m.Content[len(p.printed):])
		p.printed = m.Content
	}
}

func (p *streamPrinter) finish(last model.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if last.Role != model.RoleAssistant {
		return
	}
	switch {
	case p.printed == "":
		fmt.Fprintln(p.out, last.Content)
	case strings.HasPrefix(last.Content, p.printed):
		fmt.Fprintln(p.out, last.Content[len(p.printed):])
	default:
		fmt.Fprintf(p.out, "\n%s\n", last.Content)
	}
	p.printed = ""
}

func readAttachments(paths []string) ([]model.Attachment, error) {
	var files []model.Attachment
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read attachment: %w", err)
		}
		contentType := mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		files = append(files, model.Attachment{
			Name:        filepath.Base(path),
			ContentType: contentType,
			Data:        data,
		})
	}
	return files, nil
}
