package nlp

import "unicode"

// Token is one segment of the input with its part of speech and lemma.
type Token struct {
	Surface string
	POS     string
	Lemma   string
}

// Part-of-speech categories the pipeline distinguishes.
const (
	POSVerb     = "verb"
	POSNoun     = "noun"
	POSParticle = "particle"
	POSNumber   = "number"
	POSUnit     = "unit"
	POSUnknown  = "unknown"
)

// Tokenizer segments normalized text into tokens. Implementations must be
// deterministic. The rule-based tokenizer below is the always-available
// fallback; a morphological analyzer can be plugged in behind the same
// interface.
type Tokenizer interface {
	Tokenize(text string) []Token
}

// lexEntry maps a surface form to its token. Longest match wins.
type lexEntry struct {
	pos   string
	lemma string
}

// tokenLexicon holds surface forms the rule tokenizer recognizes. Verb
// surfaces include the common conjugations seen in drone commands; every
// conjugation maps back to one lemma so intent rules match on a single form.
var tokenLexicon = map[string]lexEntry{
	// Verbs (Japanese)
	"接続":     {POSVerb, "接続"},
	"つない":    {POSVerb, "接続"},
	"繋い":     {POSVerb, "接続"},
	"切断":     {POSVerb, "切断"},
	"離陸":     {POSVerb, "離陸"},
	"飛び立":    {POSVerb, "離陸"},
	"テイクオフ":  {POSVerb, "離陸"},
	"着陸":     {POSVerb, "着陸"},
	"降り":     {POSVerb, "着陸"},
	"移動":     {POSVerb, "移動"},
	"進ん":     {POSVerb, "移動"},
	"進め":     {POSVerb, "移動"},
	"進む":     {POSVerb, "移動"},
	"動かし":    {POSVerb, "移動"},
	"動い":     {POSVerb, "移動"},
	"回転":     {POSVerb, "回転"},
	"回っ":     {POSVerb, "回転"},
	"回れ":     {POSVerb, "回転"},
	"撮影":     {POSVerb, "撮影"},
	"撮っ":     {POSVerb, "撮影"},
	"撮れ":     {POSVerb, "撮影"},
	"止まれ":    {POSVerb, "停止"},
	"止め":     {POSVerb, "停止"},
	"停止":     {POSVerb, "停止"},

	// Verbs (English)
	"connect":    {POSVerb, "接続"},
	"disconnect": {POSVerb, "切断"},
	"takeoff":    {POSVerb, "離陸"},
	"land":       {POSVerb, "着陸"},
	"move":       {POSVerb, "移動"},
	"go":         {POSVerb, "移動"},
	"rotate":     {POSVerb, "回転"},
	"turn":       {POSVerb, "回転"},
	"stop":       {POSVerb, "停止"},

	// Nouns
	"ドローン":   {POSNoun, "ドローン"},
	"drone":  {POSNoun, "ドローン"},
	"写真":     {POSNoun, "写真"},
	"photo":  {POSNoun, "写真"},
	"picture": {POSNoun, "写真"},
	"録画":     {POSNoun, "録画"},
	"ビデオ":    {POSNoun, "録画"},
	"video":  {POSNoun, "録画"},
	"開始":     {POSNoun, "開始"},
	"start":  {POSNoun, "開始"},
	"終了":     {POSNoun, "終了"},
	"高度":     {POSNoun, "高度"},
	"altitude": {POSNoun, "高度"},
	"状態":     {POSNoun, "状態"},
	"ステータス":  {POSNoun, "状態"},
	"status": {POSNoun, "状態"},
	"バッテリー":  {POSNoun, "状態"},
	"battery": {POSNoun, "状態"},
	"緊急":     {POSNoun, "緊急"},
	"emergency": {POSNoun, "緊急"},
	"ヘルプ":    {POSNoun, "ヘルプ"},
	"help":   {POSNoun, "ヘルプ"},
	"使い方":    {POSNoun, "ヘルプ"},

	// Directions
	"前":        {POSNoun, "前"},
	"前方":       {POSNoun, "前"},
	"forward":  {POSNoun, "前"},
	"後ろ":       {POSNoun, "後"},
	"後方":       {POSNoun, "後"},
	"back":     {POSNoun, "後"},
	"backward": {POSNoun, "後"},
	"左":        {POSNoun, "左"},
	"left":     {POSNoun, "左"},
	"右":        {POSNoun, "右"},
	"right":    {POSNoun, "右"},
	"上":        {POSNoun, "上"},
	"up":       {POSNoun, "上"},
	"下":        {POSNoun, "下"},
	"down":     {POSNoun, "下"},

	// Rotation directions
	"時計回り":             {POSNoun, "時計回り"},
	"右回り":              {POSNoun, "時計回り"},
	"clockwise":        {POSNoun, "時計回り"},
	"反時計回り":            {POSNoun, "反時計回り"},
	"左回り":              {POSNoun, "反時計回り"},
	"counterclockwise": {POSNoun, "反時計回り"},

	// Units
	"センチメートル": {POSUnit, "cm"},
	"センチ":     {POSUnit, "cm"},
	"cm":      {POSUnit, "cm"},
	"メートル":    {POSUnit, "m"},
	"m":       {POSUnit, "m"},
	"度":       {POSUnit, "deg"},
	"deg":     {POSUnit, "deg"},
	"degrees": {POSUnit, "deg"},
	"秒":       {POSUnit, "s"},
	"sec":     {POSUnit, "s"},

	// Particles and fillers
	"を":    {POSParticle, "を"},
	"に":    {POSParticle, "に"},
	"へ":    {POSParticle, "へ"},
	"で":    {POSParticle, "で"},
	"と":    {POSParticle, "と"},
	"は":    {POSParticle, "は"},
	"が":    {POSParticle, "が"},
	"の":    {POSParticle, "の"},
	"して":   {POSParticle, "て"},
	"て":    {POSParticle, "て"},
	"させ":   {POSParticle, "させ"},
	"さ":    {POSParticle, "さ"},
	"し":    {POSParticle, "し"},
	"ください": {POSParticle, "ください"},
	"下さい":  {POSParticle, "ください"},
	"から":   {POSParticle, "から"},
	"まで":   {POSParticle, "まで"},
	"そして":  {POSParticle, "そして"},
	"それから": {POSParticle, "それから"},
	"です":   {POSParticle, "です"},
	"ます":   {POSParticle, "ます"},
	"ね":    {POSParticle, "ね"},
	"よ":    {POSParticle, "よ"},
	"to":   {POSParticle, "to"},
	"the":  {POSParticle, "the"},
	"ちょっと": {POSParticle, "ちょっと"},
	"少し":   {POSParticle, "ちょっと"},
}

// maxLexiconSurface is the longest surface form in the lexicon, in runes.
const maxLexiconSurface = 16

// ruleTokenizer is the deterministic fallback tokenizer: longest-match scan
// against the lexicon, with runs of digits and ASCII identifiers as single
// tokens and everything else passed through rune by rune.
type ruleTokenizer struct{}

// NewRuleTokenizer returns the deterministic rule-based tokenizer.
func NewRuleTokenizer() Tokenizer {
	return &ruleTokenizer{}
}

func (rt *ruleTokenizer) Tokenize(text string) []Token {
	runes := []rune(text)
	var tokens []Token

	for i := 0; i < len(runes); {
		r := runes[i]

		if unicode.IsSpace(r) {
			i++
			continue
		}

		if r >= '0' && r <= '9' {
			j := i
			for j < len(runes) && runes[j] >= '0' && runes[j] <= '9' {
				j++
			}
			surface := string(runes[i:j])
			tokens = append(tokens, Token{Surface: surface, POS: POSNumber, Lemma: surface})
			i = j
			continue
		}

		// Longest lexicon match wins; try lowercase for ASCII surfaces.
		matched := false
		limit := i + maxLexiconSurface
		if limit > len(runes) {
			limit = len(runes)
		}
		for j := limit; j > i; j-- {
			surface := string(runes[i:j])
			entry, ok := tokenLexicon[surface]
			if !ok {
				entry, ok = tokenLexicon[asciiLower(surface)]
			}
			if ok {
				// ASCII prefixes of identifiers stay whole: "AA" must not
				// split into lexicon hits.
				if isASCIIWordRune(r) && j < len(runes) && isASCIIWordRune(runes[j]) {
					continue
				}
				tokens = append(tokens, Token{Surface: surface, POS: entry.pos, Lemma: entry.lemma})
				i = j
				matched = true
				break
			}
		}
		if matched {
			continue
		}

		if isASCIIWordRune(r) {
			j := i
			for j < len(runes) && isASCIIWordRune(runes[j]) {
				j++
			}
			surface := string(runes[i:j])
			tokens = append(tokens, Token{Surface: surface, POS: POSUnknown, Lemma: surface})
			i = j
			continue
		}

		tokens = append(tokens, Token{Surface: string(r), POS: POSUnknown, Lemma: string(r)})
		i++
	}
	return tokens
}

func isASCIIWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r == '-'
}

func asciiLower(s string) string {
	b := []byte(s)
	changed := false
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
			changed = true
		}
	}
	if !changed {
		return s
	}
	return string(b)
}
