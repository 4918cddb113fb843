package wind

import "github.com/renewmap/compass/pkg/llm/dtree"

// Prompt fragments substituted into the JSON-output nodes of every graph.
const (
	sectionPrompt = `The value of the "section" key should be a string ` +
		"representing the title of the section (including numerical " +
		"labels), if it's given, and `null` otherwise."
	commentPrompt = `The value of the "comment" key should be a ` +
		"one-sentence explanation of how you determined the value, if " +
		"you think it is necessary (`null` otherwise)."
	summaryPrompt = `The value of the "summary" key should be a ` +
		"two-sentence short summary of the ordinance, quoting the text " +
		"directly if possible."
)

// ExtractOriginalTextPrompt asks for verbatim setback text for a feature.
// The structured parser also uses it to rewrite transcript prefixes when
// forking participating/non-participating dialogs.
const ExtractOriginalTextPrompt = "Extract all portions of the text " +
	"(with original formatting) that state how close I can site {tech} " +
	"to {feature}"

const sizeFocus = "Please only consider setbacks specifically for systems " +
	"that would typically be defined as {tech} based on the text itself " +
	"- for example, systems intended for electricity generation or " +
	"sale, or those above thresholds such as height, rotor diameter, " +
	"or rated capacity. Ignore any requirements that apply only to " +
	"smaller or clearly non-commercial systems or to meteorological " +
	"towers. "

// newGraph builds a graph whose bindings carry the shared prompt fragments
// plus any caller-specific keys.
func newGraph(bindings map[string]any) *dtree.Graph {
	merged := map[string]any{
		"SECTION_PROMPT": sectionPrompt,
		"COMMENT_PROMPT": commentPrompt,
		"SUMMARY_PROMPT": summaryPrompt,
	}
	for k, v := range bindings {
		merged[k] = v
	}
	return dtree.NewGraph(merged)
}

// WESTypesGraph asks whether the text distinguishes multiple wind energy
// system sizes and names the largest regulated one.
func WESTypesGraph(bindings map[string]any) *dtree.Graph {
	g := newGraph(bindings)
	g.AddNode(dtree.InitNode,
		"Does the following text distinguish between multiple wind energy "+
			"system sizes? Distinctions are often made as 'small', "+
			"'personal', or 'private' vs 'large', 'commercial', or "+
			"'utility'. Sometimes the distinction uses actual MW values. "+
			"Please start your response with either 'Yes' or 'No' and "+
			"briefly explain your answer."+
			"\n\n\"\"\"\n{text}\n\"\"\"")
	g.AddEdge(dtree.InitNode, "get_text", dtree.StartsWithYes)
	g.AddNode("get_text",
		"What are the different wind energy system sizes regulated by "+
			"this ordinance? List them in order of increasing size. "+
			"Include any relevant numerical qualifiers in the name, if "+
			"appropriate. Only list wind energy system types; do not "+
			"include generic types or other energy system types.")
	g.AddEdge("get_text", "final", nil)
	g.AddNode("final",
		"Respond based on our entire conversation so far. Return your "+
			"answer as a dictionary in JSON format (not markdown). Your "+
			"JSON file must include exactly two keys. The keys are "+
			"'largest_wes_type' and 'explanation'. The value of the "+
			"'largest_wes_type' key should be a string that labels the "+
			"largest wind energy conversion system size regulated by this "+
			"ordinance. The value of the 'explanation' key should be a "+
			"string containing a short explanation for your choice.")
	return g
}

// BaseSetbackGraph checks whether the text contains a setback for a feature
// and, if so, extracts the verbatim ordinance text. Its transcript seeds
// every downstream value-extraction dialog for the feature.
func BaseSetbackGraph(bindings map[string]any) *dtree.Graph {
	g := newGraph(bindings)
	g.AddNode(dtree.InitNode,
		"Is there text in the following legal document that describes "+
			"how far I have to setback {tech} from {feature}? "+
			"{feature_clarifications}"+
			"Pay extra attention to clarifying text found in parentheses "+
			"and footnotes. Begin your response with either 'Yes' or 'No' "+
			"and explain your answer."+
			"\n\n\"\"\"\n{text}\n\"\"\"")
	g.AddEdge(dtree.InitNode, "get_text", dtree.DoesNotStartWithNo)
	g.AddNode("get_text", ExtractOriginalTextPrompt)
	return g
}

// MultiplierGraph extracts a setback multiplier (or fixed distance) for a
// feature.
func MultiplierGraph(bindings map[string]any) *dtree.Graph {
	g := newGraph(bindings)
	g.AddNode(dtree.InitNode,
		"Does the text mention a multiplier that should be applied to a "+
			"turbine dimension (e.g. height, rotor diameter, etc) to "+
			"compute the setback distance from {feature} for {tech}? "+
			"Focus only on {feature}; do not respond based on any text "+
			"related to {ignore_features}. "+sizeFocus+
			"Remember that 1 is a valid multiplier, and treat any mention "+
			"of 'fall zone' as a system height multiplier of 1. "+
			"Please start your response with either 'Yes' or 'No' and "+
			"briefly explain your answer.")
	g.AddEdge(dtree.InitNode, "m_single", dtree.StartsWithYes)
	g.AddEdge(dtree.InitNode, "no_multiplier", dtree.StartsWithNo)

	g.AddNode("no_multiplier",
		"Does the ordinance give the setback from {feature} as a fixed "+
			"distance value? "+
			"Focus only on {feature}; do not respond based on any text "+
			"related to {ignore_features}. "+sizeFocus+
			"Please start your response with either 'Yes' or 'No' and "+
			"briefly explain your answer.")
	g.AddEdge("no_multiplier", "units", dtree.StartsWithYes)
	g.AddEdge("no_multiplier", "out_static", dtree.StartsWithNo)
	g.AddNode("units",
		"What are the units for the setback from {feature}? "+
			"Ensure that:\n1) You accurately identify the unit value "+
			"associated with the setback.\n2) The unit is expressed using "+
			"standard, conventional unit names (e.g., 'feet', 'meters', "+
			"'miles' etc.)\n3) If multiple values are mentioned, return "+
			"only the units for the most restrictive value that directly "+
			"pertains to the setback.\n\n"+
			"Example Inputs and Outputs:\n"+
			"Text: 'All Solar Farms shall be set back a distance of at "+
			"least one thousand (1000) feet, from any primary structure'\n"+
			"Output: 'feet'\n")
	g.AddEdge("units", "out_static", nil)
	g.AddNode("out_static",
		"Please respond based on our entire conversation so far. Return "+
			"your answer in JSON format (not markdown). Your JSON file "+
			"must include exactly four keys. The keys are 'value', "+
			"'units', 'summary', and 'section'. The value of the 'value' "+
			"key should be a **numerical** value corresponding to the "+
			"setback distance value from {feature} or `null` if there was "+
			"no such value. The value of the 'units' key should be a "+
			"string corresponding to the (standard) units of the setback "+
			"distance value from {feature} or `null` if there was no such "+
			"value. As before, focus only on setbacks specifically for "+
			"systems that would typically be defined as {tech} based on "+
			"the text itself. {SUMMARY_PROMPT} {SECTION_PROMPT}")

	g.AddNode("m_single",
		"Are multiple values given for the multiplier used to compute "+
			"the setback distance value from {feature} for {tech}? "+
			"Remember to ignore any text related to {ignore_features}. "+
			sizeFocus+
			"If so, select and state the largest one. Otherwise, repeat "+
			"the single multiplier value that was given in the text.")
	g.AddEdge("m_single", "m_type", nil)
	g.AddNode("m_type",
		"What kind of multiplier is stated in the text to compute the "+
			"setback distance from {feature}? "+
			"Remember to ignore any text related to {ignore_features}. "+
			sizeFocus+
			"Select a value from the following list: "+
			"['tip-height-multiplier', 'hub-height-multiplier', "+
			"'rotor-diameter-multiplier]. "+
			"Default to 'tip-height-multiplier' unless the text "+
			"explicitly explains that the multiplier should be applied to "+
			"the distance up to the turbine hub or to the diameter of the "+
			"rotors. Briefly justify your answer.")
	g.AddEdge("m_type", "adder", nil)
	g.AddNode("adder",
		"Does the ordinance for the setback from {feature} include a "+
			"static distance value that should be added to the result of "+
			"the multiplication? "+sizeFocus+
			"Do not confuse this value with static setback requirements. "+
			"Ignore text with clauses such as 'no lesser than', 'no "+
			"greater than', 'the lesser of', or 'the greater of'. Please "+
			"start your response with either 'Yes' or 'No' and briefly "+
			"explain your answer, stating the adder value if it exists.")
	g.AddEdge("adder", "adder_eq", dtree.StartsWithYes)
	g.AddEdge("adder", "out_no_adder", dtree.StartsWithNo)
	g.AddNode("adder_eq",
		"Does the adder value you identified satisfy the following "+
			"equation: `multiplier * height + <adder>`? Please begin your "+
			"response with either 'Yes' or 'No' and briefly explain your "+
			"answer.")
	g.AddEdge("adder_eq", "conversion", dtree.StartsWithYes)
	g.AddEdge("adder_eq", "out_no_adder", dtree.StartsWithNo)
	g.AddNode("conversion",
		"If the adder value is not given in feet, convert it to feet "+
			"(remember that there are 3.28084 feet in one meter and 5280 "+
			"feet in one mile). Show your work step-by-step if you had to "+
			"perform a conversion.")
	g.AddEdge("conversion", "out_m", nil)
	g.AddNode("out_m",
		"Please respond based on our entire conversation so far. Return "+
			"your answer as a single dictionary in JSON format (not "+
			"markdown). Your JSON file must include exactly five keys. "+
			"The keys are 'mult_value', 'mult_type', 'adder', 'summary', "+
			"and 'section'. The value of the 'mult_value' key should be a "+
			"**numerical** value corresponding to the multiplier value we "+
			"determined earlier. The value of the 'mult_type' key should "+
			"be a string corresponding to the dimension that the "+
			"multiplier should be applied to, as we determined earlier. "+
			"The value of the 'adder' key should be a **numerical** value "+
			"corresponding to the static value to be added to the total "+
			"setback distance after multiplication, as we determined "+
			"earlier, or `null` if there is no such value. "+
			"{SUMMARY_PROMPT} {SECTION_PROMPT}")
	g.AddNode("out_no_adder",
		"Please respond based on our entire conversation so far. Return "+
			"your answer as a single dictionary in JSON format (not "+
			"markdown). Your JSON file must include exactly four keys. "+
			"The keys are 'mult_value', 'mult_type', 'summary', and "+
			"'section'. The value of the 'mult_value' key should be a "+
			"**numerical** value corresponding to the multiplier value we "+
			"determined earlier. The value of the 'mult_type' key should "+
			"be a string corresponding to the dimension that the "+
			"multiplier should be applied to, as we determined earlier. "+
			"{SUMMARY_PROMPT} {SECTION_PROMPT}")
	return g
}

// ConditionalMinGraph extracts a minimum setback threshold, usually quoted
// in "the greater of" clauses.
func ConditionalMinGraph(bindings map[string]any) *dtree.Graph {
	g := newGraph(bindings)
	g.AddNode(dtree.InitNode,
		"Focus only on setbacks from {feature}; do not respond based on "+
			"any text related to {ignore_features}. "+sizeFocus+
			"Does the setback from {feature} for {tech} mention a minimum "+
			"setback distance **regardless of the outcome** of the "+
			"multiplier calculation? This value acts like a threshold and "+
			"is often found within phrases like 'the greater of'. "+
			"Begin your response with either 'Yes' or 'No' and briefly "+
			"explain your answer.")
	g.AddEdge(dtree.InitNode, "min_eq", dtree.StartsWithYes)
	g.AddNode("min_eq",
		"Does the threshold value you identified satisfy the following "+
			"equation: `setback_distance = max(<threshold>, "+
			"multiplier_setback)`? Please begin your response with either "+
			"'Yes' or 'No' and briefly explain your answer.")
	g.AddEdge("min_eq", "conversions_min", dtree.StartsWithYes)
	g.AddNode("conversions_min",
		"If the threshold value is not given in feet, convert it to feet "+
			"(remember that there are 3.28084 feet in one meter and 5280 "+
			"feet in one mile). Show your work step-by-step if you had to "+
			"perform a conversion.")
	g.AddEdge("conversions_min", "out", nil)
	g.AddNode("out",
		"Please respond based on our entire conversation so far. Return "+
			"your answer as a single dictionary in JSON format (not "+
			"markdown). Your JSON file must include exactly two keys. The "+
			"keys are 'min_dist' and 'summary'. The value of the "+
			"'min_dist' key should be a **numerical** value corresponding "+
			"to the minimum setback value from {feature} that we "+
			"determined earlier, or `null` if no such value exists. "+
			"{SUMMARY_PROMPT}")
	return g
}

// ConditionalMaxGraph extracts a maximum setback limit, usually quoted in
// "the lesser of" clauses.
func ConditionalMaxGraph(bindings map[string]any) *dtree.Graph {
	g := newGraph(bindings)
	g.AddNode(dtree.InitNode,
		"Focus only on setbacks from {feature}; do not respond based on "+
			"any text related to {ignore_features}. "+sizeFocus+
			"Does the setback from {feature} for {tech} mention a maximum "+
			"setback distance **regardless of the outcome** of the "+
			"multiplier calculation? This value acts like a limit and is "+
			"often found within phrases like 'the lesser of'. "+
			"Begin your response with either 'Yes' or 'No' and briefly "+
			"explain your answer.")
	g.AddEdge(dtree.InitNode, "max_eq", dtree.StartsWithYes)
	g.AddNode("max_eq",
		"Does the limit value you identified satisfy the following "+
			"equation: `setback_distance = min(multiplier_setback, "+
			"<limit>)`? Please begin your response with either 'Yes' or "+
			"'No' and briefly explain your answer.")
	g.AddEdge("max_eq", "conversions_max", dtree.StartsWithYes)
	g.AddNode("conversions_max",
		"If the limit value is not given in feet, convert it to feet "+
			"(remember that there are 3.28084 feet in one meter and 5280 "+
			"feet in one mile). Show your work step-by-step if you had to "+
			"perform a conversion.")
	g.AddEdge("conversions_max", "out", nil)
	g.AddNode("out",
		"Please respond based on our entire conversation so far. Return "+
			"your answer as a single dictionary in JSON format (not "+
			"markdown). Your JSON file must include exactly two keys. The "+
			"keys are 'max_dist' and 'summary'. The value of the "+
			"'max_dist' key should be a **numerical** value corresponding "+
			"to the maximum setback value from {feature} that we "+
			"determined earlier, or `null` if no such value exists. "+
			"{SUMMARY_PROMPT}")
	return g
}

// ParticipatingOwnerGraph splits ordinance text into the portions that
// apply to participating and non-participating owners.
func ParticipatingOwnerGraph(bindings map[string]any) *dtree.Graph {
	g := newGraph(bindings)
	g.AddNode(dtree.InitNode,
		"Does the ordinance for {feature} setbacks explicitly specify a "+
			"value that applies to participating owners? Occupying owners "+
			"are not participating owners unless explicitly mentioned in "+
			"the text. Justify your answer by quoting the raw text "+
			"directly.")
	g.AddEdge(dtree.InitNode, "non_part", nil)
	g.AddNode("non_part",
		"Does the ordinance for {feature} setbacks explicitly specify a "+
			"value that applies to non-participating owners? Non-occupying "+
			"owners are not non-participating owners unless explicitly "+
			"mentioned in the text. Justify your answer by quoting the raw "+
			"text directly.")
	g.AddEdge("non_part", "final", nil)
	g.AddNode("final",
		"Please respond based on our entire conversation so far. Return "+
			"your answer in JSON format (not markdown). Your JSON file "+
			"must include exactly two keys. The keys are \"participating\" "+
			"and \"non-participating\". The value of the \"participating\" "+
			"key should be a string containing the raw text with original "+
			"formatting from the ordinance that applies to participating "+
			"owners or `null` if there was no such text. The value of the "+
			"\"non-participating\" key should be a string containing the "+
			"raw text with original formatting from the ordinance that "+
			"applies to non-participating owners or simply the full "+
			"ordinance if the text did not make the distinction between "+
			"participating and non-participating owners.")
	return g
}

// ExtraRestrictionGraph extracts a non-setback restriction. Numerical
// restrictions report value and units; qualitative ones only summarize.
func ExtraRestrictionGraph(isNumerical bool, bindings map[string]any) *dtree.Graph {
	g := newGraph(bindings)
	g.AddNode(dtree.InitNode,
		"Does the following text explicitly mention {restriction} for "+
			"{tech}? Do not infer based on other restrictions; if this "+
			"particular restriction is not explicitly mentioned then say "+
			"'No'. Pay extra attention to clarifying text found in "+
			"parentheses and footnotes. {restriction_clarifications}"+
			"Begin your response with either "+
			"'Yes' or 'No' and explain your answer."+
			"\n\n\"\"\"\n{text}\n\"\"\"")
	g.AddEdge(dtree.InitNode, "final", dtree.StartsWithYes)
	if isNumerical {
		g.AddNode("final",
			"Please respond based on our entire conversation so far. "+
				"Return your answer in JSON format (not markdown). Your "+
				"JSON file must include exactly five keys. The keys are "+
				"\"value\", \"units\", \"summary\", \"section\", and "+
				"\"comment\". The value of the \"value\" key should be a "+
				"numerical value corresponding to the {restriction} for "+
				"{tech}, or `null` if the text does not mention such a "+
				"restriction. Use our conversation to fill out this "+
				"value. The value of the \"units\" key should be a string "+
				"corresponding to the units for the {restriction} allowed "+
				"for {tech} by the text below, or `null` if the text does "+
				"not mention such a restriction. Make sure to include any "+
				"\"per XXX\" clauses in the units. {unit_clarification}"+
				"{SUMMARY_PROMPT} {SECTION_PROMPT} {COMMENT_PROMPT}")
	} else {
		g.AddNode("final",
			"Please respond based on our entire conversation so far. "+
				"Return your answer in JSON format (not markdown). Your "+
				"JSON file must include exactly three keys. The keys are "+
				"\"summary\", \"section\", and \"comment\". "+
				"{SUMMARY_PROMPT} {SECTION_PROMPT} {COMMENT_PROMPT}")
	}
	return g
}

// PermittedUseDistrictsGraph lists the districts where the technology is
// permitted (or prohibited) as a given use type.
func PermittedUseDistrictsGraph(bindings map[string]any) *dtree.Graph {
	g := newGraph(bindings)
	g.AddNode(dtree.InitNode,
		"Does the following legal text explicitly define districts where "+
			"{tech} (or similar) are {use_type}? "+
			"{clarifications}"+
			"Pay extra attention to titles and clarifying text found in "+
			"parentheses and footnotes. Please start your response with "+
			"either 'Yes' or 'No' and briefly explain your answer."+
			"\n\n\"\"\"\n{text}\n\"\"\"")
	g.AddEdge(dtree.InitNode, "district_names", dtree.StartsWithYes)
	g.AddNode("district_names",
		"What are all of the district names (and abbreviations if given) "+
			"where {tech} (or similar) are {use_type}?")
	g.AddEdge("district_names", "final", nil)
	g.AddNode("final",
		"Please respond based on our entire conversation so far. Return "+
			"your answer as a dictionary in JSON format (not markdown). "+
			"Your JSON file must include exactly three keys. The keys are "+
			"'value', 'summary', and 'section'. The value of the 'value' "+
			"key should be a list of all district names (and abbreviations "+
			"if given) where {tech} (or similar) are "+
			"{use_type}, or `null` if the text does not mention this use "+
			"type for {tech} (or similar). Use our conversation to fill "+
			"out this value. {SUMMARY_PROMPT} {SECTION_PROMPT}")
	return g
}
