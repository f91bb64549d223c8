package decisionpg

import (
	"context"
	"fmt"
	"log"

	"github.com/UnendingLoop/PhotoReview/internal/model"
	"github.com/wb-go/wbf/dbpg"
)

type PostgresRepo struct {
	DB *dbpg.DB
}

func (p PostgresRepo) Create(ctx context.Context, d *model.Decision) error {
	query := `INSERT INTO decisions (job_id, owner_ref, verdict, choice, first_name, last_name, subject_name, category, flag, decided_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING id`
	return p.DB.QueryRowContext(ctx, query,
		int64(d.JobID),
		d.OwnerRef,
		d.Verdict,
		d.Choice,
		d.Meta.FirstName,
		d.Meta.LastName,
		d.Meta.SubjectName,
		d.Meta.Category,
		d.Meta.Flag,
		d.DecidedAt).Scan(&d.ID)
}

func (p PostgresRepo) GetList(ctx context.Context, req *model.ListRequest) ([]model.Decision, error) {
	// Order уже провалидирован сервисом и может быть только ASC/DESC
	query := fmt.Sprintf(`SELECT id, job_id, owner_ref, verdict, choice, first_name, last_name, subject_name, category, flag, decided_at
	FROM decisions
	ORDER BY decided_at %s, id %s
	LIMIT $1
	OFFSET $2`, req.Order, req.Order)

	offset := (req.Page - 1) * req.Limit

	rows, err := p.DB.QueryContext(ctx, query, req.Limit, offset)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("Error while closing *sql.Rows after scanning: %v", err)
		}
	}()

	decisions := make([]model.Decision, 0, req.Limit)
	for rows.Next() {
		var d model.Decision
		var jobID int64
		if err := rows.Scan(&d.ID,
			&jobID,
			&d.OwnerRef,
			&d.Verdict,
			&d.Choice,
			&d.Meta.FirstName,
			&d.Meta.LastName,
			&d.Meta.SubjectName,
			&d.Meta.Category,
			&d.Meta.Flag,
			&d.DecidedAt); err != nil {
			return nil, err
		}
		d.JobID = uint64(jobID)
		decisions = append(decisions, d)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return decisions, nil
}
