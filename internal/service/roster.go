package service

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/novalabs/wa-reporting/internal/domain/model"
	apperrors "github.com/novalabs/wa-reporting/internal/errors"
)

// rosterColumns are the columns a Slack roster export must carry. Extra
// columns are ignored; order does not matter.
var rosterColumns = []string{"username", "email", "fullname", "status"}

// ParseRoster reads an uploaded Slack roster CSV. The first row must be a
// header naming at least the required columns (case-insensitive).
func ParseRoster(r io.Reader) ([]model.RosterUser, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "read roster header")
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var missing []string
	for _, col := range rosterColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.Validationf("roster is missing required columns: %s", strings.Join(missing, ", "))
	}

	var users []model.RosterUser
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.Wrapf(err, apperrors.ErrCodeValidation, "read roster line %d", line)
		}
		users = append(users, model.RosterUser{
			Username: strings.TrimSpace(record[index["username"]]),
			Email:    strings.TrimSpace(record[index["email"]]),
			FullName: strings.TrimSpace(record[index["fullname"]]),
			Status:   strings.TrimSpace(record[index["status"]]),
		})
	}
	if len(users) == 0 {
		return nil, apperrors.Validation("roster contains no rows")
	}

	return users, nil
}
