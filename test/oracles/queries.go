package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns queries that must produce no rows on a consistent database.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_rating_matches_remarks",
			SQL: `SELECT id, client_rating FROM customers c
                  WHERE client_rating <> (
                      SELECT round(avg((r->>'rating')::int))::int
                      FROM jsonb_array_elements(c.remarks) AS r)`,
		},
		{
			Name: "O2_remarks_present",
			SQL:  `SELECT id FROM customers WHERE jsonb_array_length(remarks) = 0`,
		},
		{
			Name: "O3_interest_selected",
			SQL: `SELECT id FROM customers c
                  WHERE NOT EXISTS (
                      SELECT 1 FROM jsonb_each(c.property_interests) AS e
                      WHERE e.value = 'true'::jsonb)`,
		},
		{
			Name: "O4_selected_interests_consistent",
			SQL: `SELECT id FROM customers c
                  WHERE cardinality(c.selected_interests) <> (
                      SELECT COUNT(*) FROM jsonb_each(c.property_interests) AS e
                      WHERE e.value = 'true'::jsonb)`,
		},
		{
			Name: "O5_full_name_derived",
			SQL:  `SELECT id FROM customers WHERE full_name <> first_name || ' ' || last_name`,
		},
		{
			Name: "O6_timestamps_ordered",
			SQL:  `SELECT id FROM customers WHERE updated_at < created_at OR submitted_at <> created_at`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
