package s3shares

import (
	"encoding/json"
	"strings"

	"github.com/datafoundry/shareflow/errors"
	"github.com/datafoundry/shareflow/share"
)

// policyDocument is the slice of IAM policy grammar the processors author.
// Policies written by other tools survive round trips as long as they stick
// to the list forms.
type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Sid       string          `json:"Sid,omitempty"`
	Effect    string          `json:"Effect"`
	Principal policyPrincipal `json:"Principal"`
	Action    []string        `json:"Action"`
	Resource  []string        `json:"Resource"`
}

type policyPrincipal struct {
	AWS []string `json:"AWS"`
}

func newPolicyDocument() *policyDocument {
	return &policyDocument{Version: "2012-10-17"}
}

func parsePolicyDocument(raw string) (*policyDocument, error) {
	if raw == "" {
		return newPolicyDocument(), nil
	}
	var doc policyDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, errors.Wrap(err, "parsing policy document")
	}
	return &doc, nil
}

func (d *policyDocument) String() (string, error) {
	j, err := json.Marshal(d)
	if err != nil {
		return "", errors.Wrap(err, "marshalling policy document")
	}
	return string(j), nil
}

// ensureStatement installs the statement, replacing one carrying the same
// Sid. Reports whether the document changed.
func (d *policyDocument) ensureStatement(st policyStatement) bool {
	for i, cur := range d.Statement {
		if cur.Sid != st.Sid {
			continue
		}
		if statementsEqual(cur, st) {
			return false
		}
		d.Statement[i] = st
		return true
	}
	d.Statement = append(d.Statement, st)
	return true
}

// removeStatement drops the statement with the Sid. Reports whether the
// document changed.
func (d *policyDocument) removeStatement(sid string) bool {
	for i, cur := range d.Statement {
		if cur.Sid == sid {
			d.Statement = append(d.Statement[:i], d.Statement[i+1:]...)
			return true
		}
	}
	return false
}

func (d *policyDocument) hasStatement(sid string) bool {
	for _, cur := range d.Statement {
		if cur.Sid == sid {
			return true
		}
	}
	return false
}

func (d *policyDocument) empty() bool {
	return len(d.Statement) == 0
}

func statementsEqual(a, b policyStatement) bool {
	aj, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(aj) == string(bj)
}

// statementSid is the Sid the processors stamp on the statements they own,
// one per share. Sids allow alphanumerics only, so the URI's hyphens go.
func statementSid(uri share.ShareURI) string {
	return "shareflow" + strings.ReplaceAll(string(uri), "-", "")
}
