package agent

import "fmt"

// Prompt templates for the four model calls of a turn. Centralized here so
// wording can be iterated on without touching the state machine.

func promptDecideTools(systemContext, query, toolsText, historyContext, filesContext string) string {
	return fmt.Sprintf(`%s

**Task:** Decide if you should use tools to answer this question.

%s%s**Current User Question:** %s

**Available Tools:**
%s

**Decision Rules (IMPORTANT: Check conversation history first):**

**FIRST: Check if the answer is already in the conversation history:**
- If the user is asking a **follow-up question** about information that was ALREADY retrieved in previous messages, DO NOT use tools again
- Look for references to specific IDs mentioned in conversation history (e.g., "SARUN12", "ELOG #12345", article IDs)
- If the user asks "give me the complete entry for X" and X was already retrieved, use the history context
- If the user asks "tell me more about X" where X is in conversation history, use the existing context

**SECOND: When to use tools (default for new queries):**
- **DEFAULT: Use tools** for NEW questions that require current, external, or additional information not in conversation history
- Use tools for PSI-specific information (accelerators, operations, logs) that hasn't been retrieved yet
- Use tools if the conversation history doesn't contain sufficient detail to answer

**When NOT to use tools:**
- Pure greetings: "hello", "hi", "thanks"
- Follow-up questions about information already in conversation history
- **Questions about uploaded files or images** - answer directly using the file content provided above
- Conversation meta-questions: "what did I just ask?", "summarize our conversation"

Reply with JSON only:
{
  "needs_tools": true/false,
  "reasoning": "brief explanation"
}
`, systemContext, historyContext, filesContext, query, toolsText)
}

func promptSelectTools(systemContext, query, toolsText, historyContext, refinementContext string) string {
	return fmt.Sprintf(`%s

**Task:** Select which tools to call to answer the user's question.

%s
**Current User Question:** %s

**Available Tools:**
%s

%s

**Context Extraction from Conversation History:**
- If the user asks about a specific entry, ID, or reference mentioned in the conversation history above, extract that information
- Look for ELOG IDs (e.g., "#39109", "SARUN12"), article IDs, or other identifiers
- Use the appropriate tool with the extracted ID to fetch complete information

**General Strategy:**
- Start with minimal arguments - only use REQUIRED parameters and those essential for the query
- Optional parameters should only be added if specifically mentioned in the user's question
- Use the elog tool for any questions about incidents, events, or operational history
- Use the accwiki tool for questions about accelerator facilities
- Use multiple tools when it makes sense to cross-reference results
- Be specific with parameter values (use exact enum options shown above)

**Date Handling:**
- Use the current date from the system context above to calculate relative dates
- "yesterday" = subtract 1 day, "last week" = subtract 7 days, "last month" = subtract 30 days
- Always use ISO format YYYY-MM-DD for date parameters

**Tool-Specific Guidelines:**

**search_accelerator_knowledge (AccWiki):**
- Extract facility from query: "hipa", "proscan", "sls", or "swissfel"
- Use "all" only if query explicitly asks about multiple facilities

**search_elog (ELOG):**
- Used for operational logs, incidents, and recent events
- Extract filters from query: category, system, domain, date range
- Only use since/until if a time range is mentioned
- For summaries over a time period use a large max_results (50-100) to cover the whole period

**get_elog_thread (ELOG):**
- Fetches a COMPLETE ELOG entry with all details and its conversation thread
- Use when the user asks for "full entry", "complete details", or references a specific ELOG ID

Reply with JSON only:
{
  "tools": [
    {
      "tool_name": "exact_tool_name",
      "arguments": {"param": "value"},
      "reasoning": "why this tool"
    }
  ]
}
`, systemContext, historyContext, query, toolsText, refinementContext)
}

func promptEvaluateResults(systemContext, query, summaryText, toolCallsText string) string {
	toolCallsSection := ""
	if toolCallsText != "" {
		toolCallsSection = fmt.Sprintf("\n**Tools Called:**\n%s\n", toolCallsText)
	}

	return fmt.Sprintf(`%s

Evaluate if the tool results provide sufficient data to answer the user's question.

**User Question:** %s
%s
**Results from Tools:**
%s

**Evaluation Criteria:**

Tools return **structured JSON data** (entries, records, search results, etc.), NOT formatted answers.

Mark as **ADEQUATE** if:
- Tool returned relevant structured data (entries, hits, records) that contain information to answer the question
- The data is relevant to the question, even if it needs formatting/synthesis

Mark as **INADEQUATE** only if:
- No results returned (empty dataset)
- Results are completely irrelevant to the question
- Tool error or missing critical data fields
- Wrong tool was called (e.g., used a wiki search when ELOG was needed)
- **Wrong date range**: if the user asked for a specific time period, check that result timestamps match it

**Remember**: Your job is to check if DATA exists, not if it's formatted nicely. Formatting happens in the next step.

**Refinement Suggestions (only if inadequate):**
- Use different tool or parameters
- Add/modify filters or search terms, or translate the query
- Expand or narrow the search scope
- **Fix date parameters**: recalculate since/until from the current date and the user's intent

Reply with JSON only:
{
  "adequate": true/false,
  "reasoning": "brief explanation of data availability",
  "refinement": "specific parameter changes if inadequate"
}
`, systemContext, query, toolCallsSection, summaryText)
}

func promptAnswerWithTools(systemContext, query, contextText, referencesText, imagesText string) string {
	return fmt.Sprintf(`%s

**Task:** Answer the user's question using the provided context.

**User Question:** %s

**Context from Tools:**
%s

**Available Source References:**
%s
%s

**General Instructions:**
- **CRITICAL: Match the language of the user's question EXACTLY:**
  * If the user question is in English, respond in English
  * If the user question is in German, respond in German
  * The language of source documents or ELOG entries does NOT matter - only the user's question language
- Be concise and technical (2-4 paragraphs)
- Ground your answer in the provided context
- Cite sources with clickable URLs
- If context is insufficient, acknowledge this clearly

**Formatting Guidelines:**

**Citations:**
- Use domain name as link text: [domain.com](URL)
- NOT: "According to [source description](URL)" or "[Web-1]"

**Images:**
- Include attached images when relevant, inline using: ![Image caption](image_url)
- Place in the relevant paragraph, not at the end

**Math:**
- Wrap equations with two dollar signs: $$formula$$

**ELOG Entries (from search_elog, get_elog_thread):**
- Always include Date/Time, Author, Category, System/Domain and the full body text
- Link with the format [elog-gfa.psi.ch/ID](URL)
- Display attachment images inline only when the entry text mentions them or the user asked for images; otherwise list them as clickable links

**AccWiki (from search_accelerator_knowledge):**
- Cite with the facility name if available, e.g. "According to SLS documentation..."
- Always provide a clickable link

**Answer:**
`, systemContext, query, contextText, referencesText, imagesText)
}

func promptAnswerNoTools(systemContext, query, historyContext, filesContext string) string {
	return fmt.Sprintf(`%s

**Task:** Answer this question using your knowledge, the conversation history, and any uploaded files.

%s%s**Current Question:** %s

**Instructions:**

**For Follow-Up Questions:**
- **CAREFULLY examine the conversation history above** - it may contain the complete information needed to answer
- If the user asks for "complete" or "full" details about something mentioned in the history, extract and present that information
- When using information from conversation history that originally came from tools, maintain the original source citations and URLs

**General Instructions:**
- **CRITICAL: Match the language of the user's question EXACTLY** (English question gets an English answer, German question gets a German answer, regardless of source language)
- Be comprehensive when the user asks for "complete" or "full" information - don't summarize unnecessarily
- If the conversation history contains the answer, use it - don't say you need to search again
- If uploaded files are provided above, use that information to answer the question
- For math equations, wrap them with TWO dollar signs on each side: $$formula$$
- If information is truly missing and not in history, acknowledge you would need to search

**Answer:**
`, systemContext, historyContext, filesContext, query)
}

// strictJSONReminder is appended to a prompt when the first reply failed to
// parse.
const strictJSONReminder = "\n\nYour previous reply was not valid JSON. Reply with a single JSON object and nothing else, no markdown fences, no commentary."
