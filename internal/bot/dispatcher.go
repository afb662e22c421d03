// Package bot dispatches card lookups found in chat messages.
//
// Flow per message: parse references, drop everything silently if the
// sender is banned, resolve references concurrently, then reply in the
// order the references appeared. One failing reference never blocks its
// siblings.
package bot

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jimsug/mtg-signal-bot/internal/alerts"
	"github.com/jimsug/mtg-signal-bot/internal/parser"
	"github.com/jimsug/mtg-signal-bot/internal/resolver"
	"github.com/jimsug/mtg-signal-bot/internal/scryfall"
	"github.com/jimsug/mtg-signal-bot/internal/storage"
)

// betweenReplyDelay spaces consecutive replies to one message, matching
// the polite gap the bot has always kept between sends.
const betweenReplyDelay = 150 * time.Millisecond

// attachmentTimeout bounds the image download for a reply.
const attachmentTimeout = 15 * time.Second

// Sender delivers rendered replies to the chat transport.
type Sender interface {
	// Send delivers message text with optional base64-encoded
	// attachments to a recipient (user or group).
	Send(ctx context.Context, recipient, message string, base64Attachments []string) error
}

// Message is one inbound chat message handed over by the transport.
type Message struct {
	// UserID is the stable sender identifier used for usage tracking
	// and bans.
	UserID string
	// Recipient is where the reply goes (the group, or the sender in a
	// direct message).
	Recipient string
	Text      string
}

// Dispatcher wires the parser, resolver, usage tracking and alerting
// behind one HandleMessage entry point.
type Dispatcher struct {
	resolver *resolver.Resolver
	usage    *storage.UsageStore
	alerts   *alerts.Manager
	sender   Sender

	// httpClient downloads card images for attachments.
	httpClient *http.Client

	// replyDelay between consecutive replies; tests shrink it.
	replyDelay time.Duration
}

// NewDispatcher creates a dispatcher over the given collaborators.
func NewDispatcher(res *resolver.Resolver, usage *storage.UsageStore, alertMgr *alerts.Manager, sender Sender) *Dispatcher {
	return &Dispatcher{
		resolver:   res,
		usage:      usage,
		alerts:     alertMgr,
		sender:     sender,
		httpClient: &http.Client{Timeout: attachmentTimeout},
		replyDelay: betweenReplyDelay,
	}
}

// lookup is the outcome of resolving one reference.
type lookup struct {
	ref     parser.CardReference
	card    *scryfall.Card
	rulings []scryfall.Ruling
	err     error
}

// HandleMessage processes one inbound message end to end. Messages with
// no references and messages from banned users produce no observable
// response.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg Message) error {
	refs := parser.Parse(msg.Text)
	if len(refs) == 0 {
		return nil
	}

	banned, err := d.usage.IsBanned(ctx, msg.UserID)
	if err != nil {
		return fmt.Errorf("ban check for %s: %w", msg.UserID, err)
	}
	if banned {
		// Silent drop: no provider call, no usage event, no reply.
		return nil
	}

	results := make([]lookup, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			results[i] = d.resolveOne(gctx, ref)
			return nil // sibling references must not be cancelled
		})
	}
	_ = g.Wait()

	// Replies keep the order the references appeared in the message.
	for i, res := range results {
		if i > 0 {
			select {
			case <-time.After(d.replyDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := d.recordUsage(ctx, msg.UserID, res.ref); err != nil {
			log.Printf("[Dispatcher] usage record failed for %s: %v", msg.UserID, err)
		}

		if err := d.reply(ctx, msg.Recipient, res); err != nil {
			log.Printf("[Dispatcher] reply for %q failed: %v", res.ref.RawName, err)
		}
	}

	return nil
}

// resolveOne resolves a single reference, fetching rulings when the
// view mode needs them.
func (d *Dispatcher) resolveOne(ctx context.Context, ref parser.CardReference) lookup {
	res := lookup{ref: ref}

	res.card, res.err = d.resolver.Resolve(ctx, ref)
	if res.err != nil {
		return res
	}

	if ref.ViewMode == parser.ViewRulings {
		res.rulings, res.err = d.resolver.Rulings(ctx, res.card.ID)
	}
	return res
}

// recordUsage appends the usage event and runs the abuse check. Every
// dispatched lookup is recorded, resolved or merely attempted.
func (d *Dispatcher) recordUsage(ctx context.Context, userID string, ref parser.CardReference) error {
	if err := d.usage.Record(ctx, userID, resolver.CacheKey(ref), time.Now()); err != nil {
		return err
	}
	return d.alerts.Check(ctx, userID)
}

// reply renders and sends the response for one lookup outcome.
func (d *Dispatcher) reply(ctx context.Context, recipient string, res lookup) error {
	if res.err != nil {
		if resolver.IsNotFound(res.err) {
			return d.sender.Send(ctx, recipient,
				fmt.Sprintf("Could not find card '%s': %s", res.ref.RawName, res.err.Error()), nil)
		}
		// Never leak provider detail to the chat.
		return d.sender.Send(ctx, recipient,
			fmt.Sprintf("Something went wrong looking up '%s'.", res.ref.RawName), nil)
	}

	text, imgURL := Format(res.card, res.rulings, res.ref.ViewMode)
	if imgURL == "" {
		return d.sender.Send(ctx, recipient, text, nil)
	}

	attachment, err := d.fetchAttachment(ctx, imgURL)
	if err != nil {
		// Fall back to text-only rather than dropping the reply.
		log.Printf("[Dispatcher] image fetch %s failed: %v", imgURL, err)
		return d.sender.Send(ctx, recipient, text, nil)
	}
	return d.sender.Send(ctx, recipient, text, []string{attachment})
}

// fetchAttachment downloads an image and encodes it for the transport.
func (d *Dispatcher) fetchAttachment(ctx context.Context, imgURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imgURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image fetch returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
