package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Account is the slice of the Account object the enricher reads and writes.
type Account struct {
	ID      string `json:"Id" salesforce:"Id"`
	Name    string `json:"Name" salesforce:"Name"`
	Website string `json:"Website" salesforce:"Website"`
	Phone   string `json:"Phone" salesforce:"Phone"`
}

// FindAccountByName returns the first Account whose Name equals name, or nil.
func FindAccountByName(ctx context.Context, c Client, name string) (*Account, error) {
	soql := fmt.Sprintf(
		"SELECT Id, Name, Website, Phone FROM Account WHERE Name = '%s' LIMIT 1",
		escapeSoql(name),
	)
	var accounts []Account
	if err := c.Query(ctx, soql, &accounts); err != nil {
		return nil, eris.Wrapf(err, "sf: find account %q", name)
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &accounts[0], nil
}

// FillAccount writes website and phone onto an Account where its own values
// are empty. It reports whether anything was written.
func FillAccount(ctx context.Context, c Client, acct *Account, website, phone string) (bool, error) {
	if acct == nil || acct.ID == "" {
		return false, eris.New("sf: account id is required")
	}
	fields := map[string]any{}
	if strings.TrimSpace(acct.Website) == "" && website != "" {
		fields["Website"] = website
	}
	if strings.TrimSpace(acct.Phone) == "" && phone != "" {
		fields["Phone"] = phone
	}
	if len(fields) == 0 {
		return false, nil
	}
	if err := c.UpdateOne(ctx, "Account", acct.ID, fields); err != nil {
		return false, eris.Wrapf(err, "sf: fill account %s", acct.ID)
	}
	return true, nil
}

func escapeSoql(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", `\'`)
}
