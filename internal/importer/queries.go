package importer

import "github.com/chatvault/chatvault/internal/model"

// Query is a request for human input; the pipeline suspends until the UI
// collaborator supplies the matching Answer.
type Query interface{ isQuery() }

// Answer is the human-supplied resumption value for a Query.
type Answer interface{ isAnswer() }

// Back is a special answer that re-enters the previous phase's query
// instead of advancing. Only phases that declare GoBack honor it.
type Back struct{}

func (Back) isAnswer() {}

// Envelope is what the UI collaborator receives when the pipeline suspends.
// Feedback carries the validation-failure message when a phase is being
// re-presented after a rejected answer.
type Envelope struct {
	Query    Query
	Feedback string
}

// ConfirmLocalNamesQuery asks the user to confirm which speaker display
// names belong to the archive owner. LocalNames is the heuristic proposal;
// RemoteNames lists the other observed names for context.
type ConfirmLocalNamesQuery struct {
	LocalNames  []string
	RemoteNames []string
}

func (ConfirmLocalNamesQuery) isQuery() {}

// LocalNamesAnswer is the user-edited local-name set.
type LocalNamesAnswer struct {
	LocalNames []string
}

func (LocalNamesAnswer) isAnswer() {}

// AccountPlan is one account the import intends to create.
type AccountPlan struct {
	Account model.FreeAccount
	Local   bool
	Aliases []string
}

// ConfirmAccountsQuery asks the user to confirm the accounts about to be
// created, with the aliases collected for each.
type ConfirmAccountsQuery struct {
	Accounts []AccountPlan
}

func (ConfirmAccountsQuery) isQuery() {}

// AccountsAnswer is the user-confirmed (possibly edited) account list.
type AccountsAnswer struct {
	Accounts []AccountPlan
}

func (AccountsAnswer) isAnswer() {}

// UnresolvedAliasesQuery lists conference speaker names that match no known
// alias or account, together with the accounts they could be mapped to.
type UnresolvedAliasesQuery struct {
	Unresolved []model.Alias
	Candidates []model.FreeAccount
}

func (UnresolvedAliasesQuery) isQuery() {}

// AliasResolutionsAnswer maps previously unresolved aliases to accounts. A
// resolution may name an account that does not exist yet; finalization
// creates it.
type AliasResolutionsAnswer struct {
	Resolutions []model.Alias
}

func (AliasResolutionsAnswer) isAnswer() {}

// Progress reports import progress to the UI. Total -1 means indeterminate.
type Progress func(comment string, completed, total int)
