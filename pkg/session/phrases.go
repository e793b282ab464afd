package session

import "github.com/adityow/sourcedesk/pkg/classify"

// Loading placeholder phrases, rotated round-robin per decision kind so
// repeated requests in one session read less mechanical. The counters
// drive only this text, never routing.
var loadingPhrases = map[classify.DecisionKind][]string{
	classify.DecisionDatabaseQuery: {
		"Searching the vendor database...",
		"Digging through vendor records...",
		"Matching vendors to your request...",
		"Checking the supplier catalog...",
		"Running one more vendor search...",
	},
	classify.DecisionRfqRequest: {
		"Drafting your RFQ...",
		"Collecting quotation details...",
		"Putting the RFQ together...",
		"Preparing the quotation request...",
		"Working on another RFQ...",
	},
	classify.DecisionRfpRequest: {
		"Drafting your RFP...",
		"Structuring the proposal request...",
		"Putting the RFP together...",
		"Preparing the proposal documents...",
		"Working on another RFP...",
	},
	classify.DecisionContractRequest: {
		"Drafting the contract data...",
		"Collecting contract terms...",
		"Putting the contract together...",
		"Preparing the agreement details...",
		"Working on another contract...",
	},
	classify.DecisionGeneralChat: {
		"Thinking...",
		"Looking into that...",
		"One moment...",
		"Checking...",
		"Let me see...",
	},
}

// phraseFor picks the loading phrase for the nth occurrence (1-based)
// of a decision kind; the first occurrence always lands on phrase zero.
func phraseFor(kind classify.DecisionKind, occurrence int) string {
	phrases, ok := loadingPhrases[kind]
	if !ok {
		phrases = loadingPhrases[classify.DecisionGeneralChat]
	}
	if occurrence < 1 {
		occurrence = 1
	}
	return phrases[(occurrence-1)%len(phrases)]
}
