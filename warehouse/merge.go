/*
Copyright © 2020 Marvin

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package warehouse

import (
	"fmt"
	"strings"
)

// QuoteIdent backtick-quotes a dataset.table path, the quoting BigQuery,
// MySQL and SQLite all accept
func QuoteIdent(dataset, table string) string {
	return fmt.Sprintf("`%s`.`%s`", escapeIdent(dataset), escapeIdent(table))
}

func escapeIdent(s string) string {
	return strings.ReplaceAll(s, "`", "``")
}

// MergeStatement inserts the temporary rows whose row_id is new to the main
// table, or whose hash differs from the latest main row of that row_id and
// that were staged after it. Running it again over the same temporary table
// inserts nothing, and a temporary table staged before the latest main rows
// never shadows them.
func MergeStatement(dataset, mainTable, tmpTable string) string {
	main := QuoteIdent(dataset, mainTable)
	tmp := QuoteIdent(dataset, tmpTable)
	return fmt.Sprintf(`INSERT INTO %s (row_id, inserted_at, payload, hash)
SELECT t.row_id, t.inserted_at, t.payload, t.hash
FROM %s AS t
LEFT JOIN (
	SELECT r.row_id, r.hash, r.inserted_at FROM (
		SELECT row_id, hash, inserted_at, ROW_NUMBER() OVER (PARTITION BY row_id ORDER BY inserted_at DESC) AS rn
		FROM %s
	) AS r WHERE r.rn = 1
) AS m ON t.row_id = m.row_id
WHERE m.row_id IS NULL OR (m.hash != t.hash AND t.inserted_at > m.inserted_at)`, main, tmp, main)
}
