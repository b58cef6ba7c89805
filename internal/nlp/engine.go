package nlp

import (
	"strings"

	"github.com/aerolink/drone-mcp/internal/config"
	"github.com/aerolink/drone-mcp/internal/fault"
)

// maxInputBytes bounds raw input before normalization.
const maxInputBytes = 4096

// Confidence penalties. Tuned so that a clause missing both move parameters
// lands well below the default 0.7 threshold.
const (
	penaltyMissingPrimary   = 0.40 // required parameter with no fallback
	penaltyMissingSecondary = 0.25 // further missing parameters
	penaltyExtraCandidate   = 0.15 // per additional matching intent
	confidenceUnknown       = 0.20
)

// Engine is the parsing pipeline. Parse is a pure function of the input and
// the configuration snapshot captured at construction; identical inputs yield
// identical results.
type Engine struct {
	threshold  float64
	normalizer *Normalizer
	tokenizer  Tokenizer
}

// NewEngine builds an engine from configuration. A nil tokenizer selects the
// rule-based fallback.
func NewEngine(cfg *config.Config, tokenizer Tokenizer) *Engine {
	if tokenizer == nil {
		tokenizer = NewRuleTokenizer()
	}
	return &Engine{
		threshold:  cfg.NLP.ConfidenceThreshold,
		normalizer: NewNormalizer(cfg.NLP.NumeralLexicon),
		tokenizer:  tokenizer,
	}
}

// Threshold returns the configured confidence threshold.
func (e *Engine) Threshold() float64 { return e.threshold }

// Parse converts text into a sequence of ParsedIntents, one per clause. A
// clause scoring below the confidence threshold fails the whole parse with a
// low_confidence fault carrying the candidate readings.
func (e *Engine) Parse(text, defaultDroneID string) ([]ParsedIntent, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fault.New(fault.KindEmptyInput, "input is empty")
	}
	if len(text) > maxInputBytes {
		return nil, fault.Newf(fault.KindInvalidParams, "input exceeds %d bytes", maxInputBytes)
	}

	normalized := e.normalizer.Normalize(text)
	clauses := splitClauses(e.tokenizer.Tokenize(normalized))
	if len(clauses) == 0 {
		return nil, fault.New(fault.KindEmptyInput, "input carries no content")
	}

	intents := make([]ParsedIntent, 0, len(clauses))
	for _, clause := range clauses {
		intent, candidates := e.parseClause(clause)
		if intent.Confidence < e.threshold {
			return nil, fault.Newf(fault.KindLowConfidence,
				"cannot determine intent for %q", intent.RawText).
				WithAttribute("confidence", intent.Confidence).
				WithAttribute("candidates", candidates)
		}
		intents = append(intents, intent)
	}

	inheritDroneID(intents, defaultDroneID)
	return intents, nil
}

// parseClause classifies and scores a single clause.
func (e *Engine) parseClause(tokens []Token) (ParsedIntent, []Candidate) {
	surfaces := make([]string, len(tokens))
	for i, t := range tokens {
		surfaces[i] = t.Surface
	}
	raw := strings.Join(surfaces, "")

	action, matched := classify(tokens)
	if action == ActionUnknown {
		return ParsedIntent{
			Action:       ActionUnknown,
			Confidence:   confidenceUnknown,
			RawText:      raw,
			SourceTokens: surfaces,
		}, nil
	}

	params, missing := extractParameters(action, tokens)

	confidence := 1.0
	for i := range missing {
		if i == 0 {
			confidence -= penaltyMissingPrimary
		} else {
			confidence -= penaltyMissingSecondary
		}
	}
	if extra := len(matched) - 1; extra > 0 {
		confidence -= float64(extra) * penaltyExtraCandidate
	}
	if confidence < 0 {
		confidence = 0
	}

	candidates := make([]Candidate, 0, len(matched))
	for i, a := range matched {
		c := confidence
		if i > 0 {
			c -= penaltyExtraCandidate
		}
		if c < 0 {
			c = 0
		}
		candidates = append(candidates, Candidate{Action: a, Confidence: c})
	}

	return ParsedIntent{
		Action:       action,
		Parameters:   params,
		Confidence:   confidence,
		RawText:      raw,
		SourceTokens: surfaces,
	}, candidates
}

// splitClauses cuts the token stream into clauses at te-form conjunctions and
// punctuation. The boundary token itself belongs to no clause.
func splitClauses(tokens []Token) [][]Token {
	var clauses [][]Token
	var current []Token

	flush := func() {
		if hasContent(current) {
			clauses = append(clauses, current)
		}
		current = nil
	}

	for i, t := range tokens {
		switch {
		case t.Lemma == "て":
			flush()
		case t.Lemma == "で" && i > 0 && tokens[i-1].POS == POSVerb:
			flush()
		case t.Surface == "、" || t.Surface == "," || t.Surface == "。" ||
			t.Lemma == "そして" || t.Lemma == "それから" ||
			strings.EqualFold(t.Surface, "and"):
			flush()
		default:
			current = append(current, t)
		}
	}
	flush()
	return clauses
}

// hasContent reports whether a clause holds anything beyond particles and
// trailing politeness.
func hasContent(tokens []Token) bool {
	for _, t := range tokens {
		if t.POS != POSParticle {
			return true
		}
	}
	return false
}

// inheritDroneID propagates a drone id named in one clause to clauses that
// name none: forward from the most recent mention, backward from the first
// mention for leading clauses, and finally the session default.
func inheritDroneID(intents []ParsedIntent, defaultDroneID string) {
	last := ""
	for i := range intents {
		if intents[i].Parameters.TargetDroneID != "" {
			last = intents[i].Parameters.TargetDroneID
		} else if last != "" {
			intents[i].Parameters.TargetDroneID = last
		}
	}

	first := ""
	for i := range intents {
		if intents[i].Parameters.TargetDroneID != "" {
			first = intents[i].Parameters.TargetDroneID
			break
		}
	}
	for i := range intents {
		if intents[i].Parameters.TargetDroneID == "" {
			if first != "" {
				intents[i].Parameters.TargetDroneID = first
			} else {
				intents[i].Parameters.TargetDroneID = defaultDroneID
			}
		}
	}
}
