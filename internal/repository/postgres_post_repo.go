package repository

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/bbs/internal/model"
)

// postColumns はpostsテーブルから読み出す列。scanPostの順序と一致させる。
const postColumns = `id, author, title, body, created_at, parent_id, thread_id,
		        owner_key_hash, like_count, author_is_generated`

// PostgresPostRepo はPostgreSQLを使用した投稿リポジトリ。
// 日付の比較は timezone で指定したタイムゾーンの暦日で行う。
type PostgresPostRepo struct {
	db       *sql.DB
	timezone string
	now      func() time.Time
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
// timezoneはIANAタイムゾーン名（例: "Asia/Tokyo"）。
func NewPostgresPostRepo(db *sql.DB, timezone string) *PostgresPostRepo {
	if timezone == "" {
		timezone = "UTC"
	}
	return &PostgresPostRepo{db: db, timezone: timezone, now: time.Now}
}

// All は全投稿をID降順で返す。
func (r *PostgresPostRepo) All(ctx context.Context) ([]model.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts ORDER BY id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗しました: %w", err)
	}
	return scanPosts(rows)
}

// ListBoard は最新latest件とsince以降の投稿の和集合をID降順で返す。
func (r *PostgresPostRepo) ListBoard(ctx context.Context, latest int, since time.Time) ([]model.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postColumns+`
		 FROM posts
		 WHERE id IN (SELECT id FROM posts ORDER BY id DESC LIMIT $1)
		    OR created_at >= $2
		 ORDER BY id DESC`,
		latest, since,
	)
	if err != nil {
		return nil, fmt.Errorf("掲示板表示用の投稿取得に失敗しました: %w", err)
	}
	return scanPosts(rows)
}

// Search は投稿者・題名・本文の部分一致と作成日の範囲で投稿を検索する。
func (r *PostgresPostRepo) Search(ctx context.Context, query, fromDate, toDate string) ([]model.Post, error) {
	var (
		conds []string
		args  []any
	)

	query = strings.TrimSpace(query)
	if query != "" {
		args = append(args, "%"+escapeLike(query)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			`(author ILIKE $%d ESCAPE '\' OR title ILIKE $%d ESCAPE '\' OR body ILIKE $%d ESCAPE '\')`, n, n, n))
	}
	if fromDate != "" {
		args = append(args, r.timezone, fromDate)
		conds = append(conds, fmt.Sprintf(`(created_at AT TIME ZONE $%d)::date >= $%d::date`, len(args)-1, len(args)))
	}
	if toDate != "" {
		args = append(args, r.timezone, toDate)
		conds = append(conds, fmt.Sprintf(`(created_at AT TIME ZONE $%d)::date <= $%d::date`, len(args)-1, len(args)))
	}

	sqlText := `SELECT ` + postColumns + ` FROM posts`
	if len(conds) > 0 {
		sqlText += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	sqlText += ` ORDER BY id DESC`

	rows, err := r.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("投稿の検索に失敗しました: %w", err)
	}
	return scanPosts(rows)
}

// FindByDate は指定日の投稿をID昇順で返す。
func (r *PostgresPostRepo) FindByDate(ctx context.Context, date string) ([]model.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postColumns+`
		 FROM posts
		 WHERE (created_at AT TIME ZONE $1)::date = $2::date
		 ORDER BY id ASC`,
		r.timezone, date,
	)
	if err != nil {
		return nil, fmt.Errorf("日別投稿の取得に失敗しました: %w", err)
	}
	return scanPosts(rows)
}

// FindByMonth は指定月の投稿をID昇順で返す。
func (r *PostgresPostRepo) FindByMonth(ctx context.Context, month string) ([]model.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postColumns+`
		 FROM posts
		 WHERE to_char(created_at AT TIME ZONE $1, 'YYYY-MM') = $2
		 ORDER BY id ASC`,
		r.timezone, month,
	)
	if err != nil {
		return nil, fmt.Errorf("月別投稿の取得に失敗しました: %w", err)
	}
	return scanPosts(rows)
}

// ListDatesWithCounts は日別の投稿件数を日付降順で返す。
func (r *PostgresPostRepo) ListDatesWithCounts(ctx context.Context) ([]model.PeriodCount, error) {
	return r.listPeriodCounts(ctx, `YYYY-MM-DD`)
}

// ListMonthsWithCounts は月別の投稿件数を月降順で返す。
func (r *PostgresPostRepo) ListMonthsWithCounts(ctx context.Context) ([]model.PeriodCount, error) {
	return r.listPeriodCounts(ctx, `YYYY-MM`)
}

func (r *PostgresPostRepo) listPeriodCounts(ctx context.Context, format string) ([]model.PeriodCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT to_char(created_at AT TIME ZONE $1, $2) AS period, COUNT(*) AS cnt
		 FROM posts
		 GROUP BY period
		 ORDER BY period DESC`,
		r.timezone, format,
	)
	if err != nil {
		return nil, fmt.Errorf("期間別投稿件数の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var counts []model.PeriodCount
	for rows.Next() {
		var pc model.PeriodCount
		if err := rows.Scan(&pc.Period, &pc.Count); err != nil {
			return nil, fmt.Errorf("期間別投稿件数の読み取りに失敗しました: %w", err)
		}
		counts = append(counts, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("期間別投稿件数の読み取りに失敗しました: %w", err)
	}
	return counts, nil
}

// FindThreadPosts はスレッドの投稿をID昇順で返す。
func (r *PostgresPostRepo) FindThreadPosts(ctx context.Context, threadID int64) ([]model.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE thread_id = $1 ORDER BY id ASC`,
		threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("スレッドの取得に失敗しました: %w", err)
	}
	return scanPosts(rows)
}

// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindByID(ctx context.Context, id int64) (*model.Post, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = $1`,
		id,
	)
	post, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	return post, nil
}

// Create は投稿を作成する。
// ルート投稿のthread_idは採番したIDと同じ値を同一文で設定する。
func (r *PostgresPostRepo) Create(ctx context.Context, p model.NewPost) (*model.Post, error) {
	createdAt := r.now().UTC().Truncate(time.Microsecond)

	row := r.db.QueryRowContext(ctx,
		`WITH next AS (SELECT nextval(pg_get_serial_sequence('posts', 'id')) AS id)
		 INSERT INTO posts (id, author, title, body, created_at, parent_id, thread_id,
		                    owner_key_hash, like_count, author_is_generated)
		 SELECT next.id, $1, $2, $3, $4, $5, COALESCE($6::bigint, next.id), $7, 0, $8
		 FROM next
		 RETURNING `+postColumns,
		p.Author, p.Title, p.Body, createdAt,
		nullInt64(p.ParentID), nullInt64(p.ThreadID), nullString(p.OwnerKeyHash),
		p.AuthorIsGenerated,
	)
	post, err := scanPost(row)
	if err != nil {
		return nil, fmt.Errorf("投稿の作成に失敗しました: %w", err)
	}
	return post, nil
}

// IsOwnedBy は投稿のオーナーキーハッシュと定数時間で比較する。
func (r *PostgresPostRepo) IsOwnedBy(ctx context.Context, id int64, ownerKeyHash string) (bool, error) {
	var stored sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT owner_key_hash FROM posts WHERE id = $1`,
		id,
	).Scan(&stored)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("投稿の所有者確認に失敗しました: %w", err)
	}
	return hashesEqual(stored, ownerKeyHash), nil
}

// Update はIDとオーナーキーハッシュが一致する投稿を更新する。
func (r *PostgresPostRepo) Update(ctx context.Context, id int64, ownerKeyHash string, upd model.PostUpdate) (*model.Post, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE posts
		 SET author = $3, title = $4, body = $5, author_is_generated = $6
		 WHERE id = $1 AND owner_key_hash = $2
		 RETURNING `+postColumns,
		id, ownerKeyHash, upd.Author, upd.Title, upd.Body, upd.AuthorIsGenerated,
	)
	post, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("投稿の更新に失敗しました: %w", err)
	}
	return post, nil
}

// Delete はIDとオーナーキーハッシュが一致する投稿を削除する。
func (r *PostgresPostRepo) Delete(ctx context.Context, id int64, ownerKeyHash string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM posts WHERE id = $1 AND owner_key_hash = $2`,
		id, ownerKeyHash,
	)
	if err != nil {
		return false, fmt.Errorf("投稿の削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n > 0, nil
}

// ToggleLike はいいね数を単一の更新文で増減する。
func (r *PostgresPostRepo) ToggleLike(ctx context.Context, id int64, liked bool) (*model.Post, error) {
	expr := `like_count + 1`
	if liked {
		expr = `CASE WHEN like_count > 0 THEN like_count - 1 ELSE 0 END`
	}

	row := r.db.QueryRowContext(ctx,
		`UPDATE posts SET like_count = `+expr+` WHERE id = $1 RETURNING `+postColumns,
		id,
	)
	post, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("いいねの更新に失敗しました: %w", err)
	}
	return post, nil
}

// rowScanner は*sql.Rowと*sql.Rowsに共通するScanメソッド。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(s rowScanner) (*model.Post, error) {
	var (
		p            model.Post
		parentID     sql.NullInt64
		threadID     sql.NullInt64
		ownerKeyHash sql.NullString
	)
	if err := s.Scan(
		&p.ID, &p.Author, &p.Title, &p.Body, &p.CreatedAt,
		&parentID, &threadID, &ownerKeyHash, &p.LikeCount, &p.AuthorIsGenerated,
	); err != nil {
		return nil, err
	}

	if parentID.Valid {
		v := parentID.Int64
		p.ParentID = &v
	}
	// 旧データでthread_idが未設定の場合は自身をルートとみなす
	p.ThreadID = p.ID
	if threadID.Valid {
		p.ThreadID = threadID.Int64
	}
	if ownerKeyHash.Valid {
		v := ownerKeyHash.String
		p.OwnerKeyHash = &v
	}
	return &p, nil
}

func scanPosts(rows *sql.Rows) ([]model.Post, error) {
	defer rows.Close()

	posts := []model.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("投稿の読み取りに失敗しました: %w", err)
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("投稿の読み取りに失敗しました: %w", err)
	}
	return posts, nil
}

// escapeLike はLIKEパターンの特殊文字をエスケープする。
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func hashesEqual(stored sql.NullString, ownerKeyHash string) bool {
	if !stored.Valid || ownerKeyHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored.String), []byte(ownerKeyHash)) == 1
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
