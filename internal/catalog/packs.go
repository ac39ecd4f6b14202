package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Pack is one catalog row describing a fetched sticker pack.
type Pack struct {
	ID           int64
	PackID       int64
	ShareLinkID  string
	TextID       string
	Title        string
	TitleKR      string
	StickerCount int
	ArchiveMD5   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const packColumns = "id, pack_id, share_link_id, text_id, title, title_kr, sticker_count, archive_md5, created_at, updated_at"

// Upsert records a pack, updating the existing row when the pack id is
// already known. CreatedAt survives updates.
func (s *Store) Upsert(ctx context.Context, pack Pack) (*Pack, error) {
	if pack.PackID <= 0 {
		return nil, errors.New("pack id must be positive")
	}
	if strings.TrimSpace(pack.ShareLinkID) == "" {
		return nil, errors.New("share link id required")
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	existing, err := s.GetByPackID(ctx, pack.PackID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		_, err := s.execWithRetry(
			ctx,
			`INSERT INTO packs (
	            pack_id, share_link_id, text_id, title, title_kr,
	            sticker_count, archive_md5, created_at, updated_at
	        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			pack.PackID,
			pack.ShareLinkID,
			pack.TextID,
			pack.Title,
			nullableString(pack.TitleKR),
			pack.StickerCount,
			nullableString(pack.ArchiveMD5),
			now,
			now,
		)
		if err != nil {
			return nil, fmt.Errorf("insert pack: %w", err)
		}
	} else {
		_, err := s.execWithRetry(
			ctx,
			`UPDATE packs SET
	            share_link_id = ?, text_id = ?, title = ?, title_kr = ?,
	            sticker_count = ?, archive_md5 = ?, updated_at = ?
	        WHERE pack_id = ?`,
			pack.ShareLinkID,
			pack.TextID,
			pack.Title,
			nullableString(pack.TitleKR),
			pack.StickerCount,
			nullableString(pack.ArchiveMD5),
			now,
			pack.PackID,
		)
		if err != nil {
			return nil, fmt.Errorf("update pack: %w", err)
		}
	}
	return s.GetByPackID(ctx, pack.PackID)
}

// GetByPackID returns the pack with the given store id, or nil when absent.
func (s *Store) GetByPackID(ctx context.Context, packID int64) (*Pack, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+packColumns+" FROM packs WHERE pack_id = ?", packID)
	pack, err := scanPack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query pack by id: %w", err)
	}
	return pack, nil
}

// GetByShareLink returns the pack fetched from the given share link id, or
// nil when absent.
func (s *Store) GetByShareLink(ctx context.Context, shareLinkID string) (*Pack, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+packColumns+" FROM packs WHERE share_link_id = ?", shareLinkID)
	pack, err := scanPack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query pack by share link: %w", err)
	}
	return pack, nil
}

// List returns all recorded packs, most recently updated first.
func (s *Store) List(ctx context.Context) ([]*Pack, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+packColumns+" FROM packs ORDER BY updated_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("list packs: %w", err)
	}
	defer rows.Close()

	var packs []*Pack
	for rows.Next() {
		pack, err := scanPack(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pack: %w", err)
		}
		packs = append(packs, pack)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate packs: %w", err)
	}
	return packs, nil
}

// Remove deletes the pack record and reports whether a row was removed.
func (s *Store) Remove(ctx context.Context, packID int64) (bool, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM packs WHERE pack_id = ?", packID)
	if err != nil {
		return false, fmt.Errorf("delete pack: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanPack(scanner interface{ Scan(dest ...any) error }) (*Pack, error) {
	var (
		id         int64
		packID     int64
		shareLink  string
		textID     sql.NullString
		title      sql.NullString
		titleKR    sql.NullString
		count      sql.NullInt64
		archiveMD5 sql.NullString
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&packID,
		&shareLink,
		&textID,
		&title,
		&titleKR,
		&count,
		&archiveMD5,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	pack := &Pack{
		ID:           id,
		PackID:       packID,
		ShareLinkID:  shareLink,
		TextID:       textID.String,
		Title:        title.String,
		TitleKR:      titleKR.String,
		StickerCount: int(count.Int64),
		ArchiveMD5:   archiveMD5.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		pack.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		pack.UpdatedAt = updated
	}
	return pack, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
