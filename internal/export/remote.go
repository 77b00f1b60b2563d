package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrichment-cli/pkg/notion"
	"github.com/sells-group/enrichment-cli/pkg/salesforce"
)

// Uploader stores a local file at an ftp:// URL. remote.Client satisfies it.
type Uploader interface {
	UploadFile(ctx context.Context, src, rawURL string) (string, error)
}

// FTPSink uploads every file written by earlier sinks.
type FTPSink struct {
	URL      string
	Uploader Uploader
}

// Name implements Sink.
func (s *FTPSink) Name() string { return "ftp" }

// Export implements Sink.
func (s *FTPSink) Export(ctx context.Context, b *Batch) (string, error) {
	if len(b.Files) == 0 {
		return "", eris.New("ftp export: no files to upload")
	}
	var locs []string
	for _, f := range b.Files {
		loc, err := s.Uploader.UploadFile(ctx, f, s.URL)
		if err != nil {
			return strings.Join(locs, ", "), eris.Wrapf(err, "ftp export: upload %s", f)
		}
		locs = append(locs, loc)
	}
	return strings.Join(locs, ", "), nil
}

// NotionSink writes Website, Email and Phone back to the pages the
// companies were loaded from.
type NotionSink struct {
	Client notion.Client
	Props  notion.ContactProperties
}

// Name implements Sink.
func (s *NotionSink) Name() string { return "notion" }

// Export implements Sink. Companies without a page ID are skipped.
func (s *NotionSink) Export(ctx context.Context, b *Batch) (string, error) {
	updated, failed := 0, 0
	var firstErr error
	for _, c := range b.Companies {
		if c.PageID == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return "", eris.Wrap(err, "notion export: cancelled")
		}
		website, email, phone := b.Contact(c)
		req := notion.ContactUpdate(s.Props, website, email, phone)
		if req == nil {
			continue
		}
		if _, err := s.Client.UpdatePage(ctx, c.PageID, req); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			zap.L().Warn("notion export: update failed", zap.String("company", c.Name), zap.Error(err))
			continue
		}
		updated++
	}
	if failed > 0 {
		return "", eris.Wrapf(firstErr, "notion export: %d of %d updates failed", failed, failed+updated)
	}
	return fmt.Sprintf("%d pages updated", updated), nil
}

// SalesforceSink fills empty Website and Phone fields on matching
// Accounts. Accounts are matched by company name.
type SalesforceSink struct {
	Client salesforce.Client
}

// Name implements Sink.
func (s *SalesforceSink) Name() string { return "salesforce" }

// Export implements Sink.
func (s *SalesforceSink) Export(ctx context.Context, b *Batch) (string, error) {
	updated, missing := 0, 0
	seen := map[string]bool{}
	for _, c := range b.Companies {
		if seen[c.Key] {
			continue
		}
		seen[c.Key] = true
		if err := ctx.Err(); err != nil {
			return "", eris.Wrap(err, "salesforce export: cancelled")
		}

		website, _, phone := b.Contact(c)
		if website == "" && phone == "" {
			continue
		}
		acct, err := salesforce.FindAccountByName(ctx, s.Client, c.Name)
		if err != nil {
			return "", eris.Wrapf(err, "salesforce export: find %q", c.Name)
		}
		if acct == nil {
			missing++
			zap.L().Debug("salesforce export: no account", zap.String("company", c.Name))
			continue
		}
		changed, err := salesforce.FillAccount(ctx, s.Client, acct, website, phone)
		if err != nil {
			return "", eris.Wrapf(err, "salesforce export: update %q", c.Name)
		}
		if changed {
			updated++
		}
	}
	zap.L().Info("salesforce export: done",
		zap.Int("updated", updated),
		zap.Int("without_account", missing),
	)
	return fmt.Sprintf("%d accounts updated", updated), nil
}
