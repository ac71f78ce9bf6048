package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// PostgreSQLのSQLSTATE。
const (
	pqUniqueViolation           = "23505"
	pqInvalidTextRepresentation = "22P02"
)

const constraintOneActiveApplication = "applications_one_active"

// uniqueViolation はerrが一意制約違反であれば違反した制約名を返す。
func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

// invalidUUID はerrがUUID列に対する不正な文字列入力(22P02)かを返す。
// URL由来のIDが不正な形式の場合に発生する。
func invalidUUID(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqInvalidTextRepresentation
}

// notFound はID検索の結果を「該当なし」として扱うべきかを返す。
// 形式不正のIDは存在し得ないため、行なしと同じ扱いにする。
func notFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || invalidUUID(err)
}
