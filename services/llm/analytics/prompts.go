// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analytics

import (
	"fmt"
	"strings"
)

// sqlSystemPromptTemplate is the system prompt for text-to-SQL generation.
// The single substitution slot receives the rendered schema description.
const sqlSystemPromptTemplate = `You are an expert SQL analyst specializing in supply chain and business analytics. Your task is to convert natural language queries into precise SQL queries for a Snowflake database.

%s

IMPORTANT GUIDELINES:
1. Always use proper table and column names exactly as defined in the schema
2. Include appropriate JOINs when querying multiple tables
3. Add LIMIT clauses for safety, especially with LINEITEM table (6M+ rows)
4. Use proper date functions and formatting for Snowflake
5. Include meaningful column aliases for better readability
6. Consider performance implications of queries
7. Only generate SELECT, WITH, SHOW, or DESCRIBE statements
8. Use appropriate aggregation functions when summarizing data
9. Include proper WHERE clauses for filtering
10. Use CASE statements for conditional logic when needed

RESPONSE FORMAT:
Always respond with a JSON object containing:
{
    "sql_query": "the SQL query",
    "explanation": "brief explanation of what the query does",
    "query_type": "type of analysis (e.g., 'supplier_performance', 'sales_analysis', 'inventory_check')",
    "estimated_rows": "estimated number of rows returned",
    "performance_notes": "any performance considerations or optimizations"
}

EXAMPLES:
User: "Show me top 10 suppliers by revenue last month"
Response: {
    "sql_query": "SELECT s.NAME as supplier_name, SUM(l.EXTENDEDPRICE * (1 - l.DISCOUNT)) as total_revenue FROM SUPPLIER s JOIN LINEITEM l ON s.SUPPKEY = l.SUPPKEY WHERE l.SHIPDATE >= DATEADD(month, -1, CURRENT_DATE) GROUP BY s.SUPPKEY, s.NAME ORDER BY total_revenue DESC LIMIT 10",
    "explanation": "Retrieves top 10 suppliers by total revenue in the last month, joining SUPPLIER and LINEITEM tables",
    "query_type": "supplier_performance",
    "estimated_rows": "10",
    "performance_notes": "Uses date filter to limit LINEITEM scan, includes LIMIT for safety"
}`

const insightsSystemPrompt = `You are a business analytics expert. Analyze the query results and provide actionable insights. Focus on:
1. Key findings and trends
2. Business implications
3. Recommendations for action
4. Notable patterns or anomalies

Keep the response concise but informative, suitable for business stakeholders.`

const followUpSystemPrompt = `You are a business analyst. Based on the original query and results, suggest 3-5 relevant follow-up questions that would provide additional insights. Focus on:
1. Drill-down analysis
2. Comparative analysis
3. Time-based trends
4. Related metrics
5. Root cause analysis

Return only the questions, one per line, without numbering or bullets.`

const chartSystemPrompt = `You are a data visualization expert. Based on the query results, recommend the most appropriate chart type and configuration.

Consider:
1. Data types (numerical, categorical, date/time)
2. Number of dimensions
3. Data volume
4. Business context
5. Clarity of visualization

Respond with a JSON object:
{
    "chart_type": "bar|line|pie|scatter|heatmap|table",
    "x_axis": "column_name",
    "y_axis": "column_name",
    "color_by": "column_name or null",
    "reason": "explanation for chart choice",
    "title": "suggested chart title"
}`

// BuildSQLSystemPrompt renders the text-to-SQL system prompt around the
// given schema description.
func BuildSQLSystemPrompt(schemaContext string) string {
	return fmt.Sprintf(sqlSystemPromptTemplate, schemaContext)
}

// BuildSQLUserMessage prepends prior conversation context to the question
// when present.
func BuildSQLUserMessage(question, conversationContext string) string {
	if conversationContext == "" {
		return question
	}
	return fmt.Sprintf("Previous conversation context:\n%s\n\nCurrent query: %s", conversationContext, question)
}

// BuildInsightsUserMessage assembles the result summary for insight
// narration.
func BuildInsightsUserMessage(question string, summary ResultSummary) string {
	return fmt.Sprintf(`Original Query: %s

Query Results Summary:
- Rows returned: %d
- Columns: %s
- Execution time: %.2f seconds

Sample Data (first %d rows):
%s

Please provide insights and analysis of these results.`,
		question,
		len(summary.Rows),
		strings.Join(summary.Columns, ", "),
		summary.ExecutionTime,
		insightsSampleRows,
		sampleJSON(summary.Rows, insightsSampleRows),
	)
}

// BuildFollowUpsUserMessage assembles the result summary for follow-up
// suggestion.
func BuildFollowUpsUserMessage(question string, summary ResultSummary) string {
	return fmt.Sprintf(`Original Query: %s
Number of results: %d
Columns in results: %s

Sample data: %s

Suggest follow-up questions for deeper analysis.`,
		question,
		len(summary.Rows),
		strings.Join(summary.Columns, ", "),
		sampleJSON(summary.Rows, followUpSampleRows),
	)
}

// BuildChartUserMessage assembles the result summary for chart
// recommendation.
func BuildChartUserMessage(question string, summary ResultSummary) string {
	return fmt.Sprintf(`Original Query: %s
Columns: %s
Sample Data: %s
Total Rows: %d

Recommend the best visualization for this data.`,
		question,
		strings.Join(summary.Columns, ", "),
		sampleJSON(summary.Rows, chartSampleRows),
		len(summary.Rows),
	)
}
