package nlp

// intentRule maps lemma evidence in a clause to an action. Rules are checked
// in order; all matching rules become candidates and the first match wins.
type intentRule struct {
	action Action
	match  func(lemmas map[string]bool) bool
}

// intentRules is ordered by specificity: compound evidence (録画+開始,
// 緊急+停止) before single-lemma triggers, so "録画停止" never reads as an
// emergency stop.
var intentRules = []intentRule{
	{ActionVideoStart, func(l map[string]bool) bool {
		return l["録画"] && (l["開始"] || !l["停止"] && !l["終了"])
	}},
	{ActionVideoStop, func(l map[string]bool) bool {
		return l["録画"] && (l["停止"] || l["終了"])
	}},
	{ActionEmergencyStop, func(l map[string]bool) bool {
		return l["停止"] && !l["録画"]
	}},
	{ActionConnect, func(l map[string]bool) bool { return l["接続"] }},
	{ActionDisconnect, func(l map[string]bool) bool { return l["切断"] }},
	{ActionTakeoff, func(l map[string]bool) bool { return l["離陸"] }},
	{ActionLand, func(l map[string]bool) bool { return l["着陸"] }},
	{ActionAltitudeSet, func(l map[string]bool) bool { return l["高度"] }},
	{ActionRotate, func(l map[string]bool) bool { return l["回転"] }},
	{ActionPhoto, func(l map[string]bool) bool { return l["撮影"] || l["写真"] }},
	{ActionStatusQuery, func(l map[string]bool) bool { return l["状態"] }},
	{ActionHelp, func(l map[string]bool) bool { return l["ヘルプ"] }},
	{ActionMove, func(l map[string]bool) bool { return l["移動"] }},
	// A bare direction with a measure reads as a move even without a verb.
	{ActionMove, func(l map[string]bool) bool {
		return l["前"] || l["後"] || l["左"] || l["右"] || l["上"] || l["下"]
	}},
}

// classify returns the winning action and every candidate action matched by
// the clause's lemmas, in rule order and deduplicated.
func classify(tokens []Token) (Action, []Action) {
	lemmas := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		lemmas[t.Lemma] = true
	}

	var candidates []Action
	seen := make(map[Action]bool)
	for _, rule := range intentRules {
		if seen[rule.action] {
			continue
		}
		if rule.match(lemmas) {
			candidates = append(candidates, rule.action)
			seen[rule.action] = true
		}
	}
	if len(candidates) == 0 {
		return ActionUnknown, nil
	}
	return candidates[0], candidates
}
