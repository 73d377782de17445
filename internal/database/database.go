package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"watgbridge/internal/migrations"
	"watgbridge/internal/models"
	"watgbridge/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(dbPath string) (*Database, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}

	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(migrations.GetInitialSchema()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	encryptor, err := NewEncryptor()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: encryptor}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// UpsertChat records or refreshes a WhatsApp chat to Telegram topic binding.
func (d *Database) UpsertChat(ctx context.Context, mapping *models.ChatMapping) error {
	encryptedJID, err := d.encryptor.EncryptForLookupIfEnabled(mapping.WhatsAppJID)
	if err != nil {
		return fmt.Errorf("failed to encrypt chat JID: %w", err)
	}

	query := `
		INSERT INTO chat_mappings (whatsapp_jid, telegram_topic_id, created_at, last_activity)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(whatsapp_jid) DO UPDATE SET
			telegram_topic_id = excluded.telegram_topic_id,
			last_activity = excluded.last_activity
	`

	return writeWithRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, query,
			encryptedJID, mapping.TelegramTopicID, mapping.CreatedAt, mapping.LastActivity)
		return err
	}, "upsert chat mapping")
}

// DeleteChat removes a chat binding, typically after its topic vanished.
func (d *Database) DeleteChat(ctx context.Context, whatsappJID string) error {
	encryptedJID, err := d.encryptor.EncryptForLookupIfEnabled(whatsappJID)
	if err != nil {
		return fmt.Errorf("failed to encrypt chat JID: %w", err)
	}

	return writeWithRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, `DELETE FROM chat_mappings WHERE whatsapp_jid = ?`, encryptedJID)
		return err
	}, "delete chat mapping")
}

// TouchChatActivity bumps the last activity timestamp for a chat.
func (d *Database) TouchChatActivity(ctx context.Context, mapping *models.ChatMapping) error {
	encryptedJID, err := d.encryptor.EncryptForLookupIfEnabled(mapping.WhatsAppJID)
	if err != nil {
		return fmt.Errorf("failed to encrypt chat JID: %w", err)
	}

	return writeWithRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx,
			`UPDATE chat_mappings SET last_activity = ? WHERE whatsapp_jid = ?`,
			mapping.LastActivity, encryptedJID)
		return err
	}, "touch chat activity")
}

// UpsertUser records or refreshes a sender profile.
func (d *Database) UpsertUser(ctx context.Context, mapping *models.UserMapping) error {
	encryptedID, err := d.encryptor.EncryptForLookupIfEnabled(mapping.WhatsAppID)
	if err != nil {
		return fmt.Errorf("failed to encrypt user ID: %w", err)
	}
	encryptedName, err := d.encryptor.EncryptIfEnabled(mapping.Name)
	if err != nil {
		return fmt.Errorf("failed to encrypt user name: %w", err)
	}
	encryptedPhone, err := d.encryptor.EncryptForLookupIfEnabled(mapping.Phone)
	if err != nil {
		return fmt.Errorf("failed to encrypt user phone: %w", err)
	}

	query := `
		INSERT INTO user_mappings (whatsapp_id, name, phone, first_seen, last_seen, message_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(whatsapp_id) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone,
			last_seen = excluded.last_seen,
			message_count = excluded.message_count
	`

	return writeWithRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, query,
			encryptedID, encryptedName, encryptedPhone,
			mapping.FirstSeen, mapping.LastSeen, mapping.MessageCount)
		return err
	}, "upsert user mapping")
}

// UpsertContact records or refreshes a phone to contact name binding.
func (d *Database) UpsertContact(ctx context.Context, mapping *models.ContactMapping) error {
	encryptedPhone, err := d.encryptor.EncryptForLookupIfEnabled(mapping.Phone)
	if err != nil {
		return fmt.Errorf("failed to encrypt contact phone: %w", err)
	}
	encryptedName, err := d.encryptor.EncryptIfEnabled(mapping.Name)
	if err != nil {
		return fmt.Errorf("failed to encrypt contact name: %w", err)
	}

	query := `
		INSERT INTO contact_mappings (phone, name, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at
	`

	return writeWithRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, query, encryptedPhone, encryptedName, mapping.UpdatedAt)
		return err
	}, "upsert contact mapping")
}

// LoadAll reads every mapping table into memory for cache warm-up at start.
func (d *Database) LoadAll(ctx context.Context) (*models.MappingSnapshot, error) {
	snapshot := &models.MappingSnapshot{}

	chats, err := d.loadChats(ctx)
	if err != nil {
		return nil, err
	}
	snapshot.Chats = chats

	users, err := d.loadUsers(ctx)
	if err != nil {
		return nil, err
	}
	snapshot.Users = users

	contacts, err := d.loadContacts(ctx)
	if err != nil {
		return nil, err
	}
	snapshot.Contacts = contacts

	return snapshot, nil
}

func (d *Database) loadChats(ctx context.Context) ([]models.ChatMapping, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT whatsapp_jid, telegram_topic_id, created_at, last_activity FROM chat_mappings`)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat mappings: %w", err)
	}
	defer rows.Close()

	var chats []models.ChatMapping
	for rows.Next() {
		var m models.ChatMapping
		var encryptedJID string
		if err := rows.Scan(&encryptedJID, &m.TelegramTopicID, &m.CreatedAt, &m.LastActivity); err != nil {
			return nil, fmt.Errorf("failed to scan chat mapping: %w", err)
		}
		m.WhatsAppJID, err = d.encryptor.DecryptIfEnabled(encryptedJID)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt chat JID: %w", err)
		}
		chats = append(chats, m)
	}
	return chats, rows.Err()
}

func (d *Database) loadUsers(ctx context.Context) ([]models.UserMapping, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT whatsapp_id, name, phone, first_seen, last_seen, message_count FROM user_mappings`)
	if err != nil {
		return nil, fmt.Errorf("failed to load user mappings: %w", err)
	}
	defer rows.Close()

	var users []models.UserMapping
	for rows.Next() {
		var m models.UserMapping
		var encryptedID, encryptedName, encryptedPhone string
		if err := rows.Scan(&encryptedID, &encryptedName, &encryptedPhone,
			&m.FirstSeen, &m.LastSeen, &m.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan user mapping: %w", err)
		}
		m.WhatsAppID, err = d.encryptor.DecryptIfEnabled(encryptedID)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt user ID: %w", err)
		}
		m.Name, err = d.encryptor.DecryptIfEnabled(encryptedName)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt user name: %w", err)
		}
		m.Phone, err = d.encryptor.DecryptIfEnabled(encryptedPhone)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt user phone: %w", err)
		}
		users = append(users, m)
	}
	return users, rows.Err()
}

func (d *Database) loadContacts(ctx context.Context) ([]models.ContactMapping, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT phone, name, updated_at FROM contact_mappings`)
	if err != nil {
		return nil, fmt.Errorf("failed to load contact mappings: %w", err)
	}
	defer rows.Close()

	var contacts []models.ContactMapping
	for rows.Next() {
		var m models.ContactMapping
		var encryptedPhone, encryptedName string
		if err := rows.Scan(&encryptedPhone, &encryptedName, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan contact mapping: %w", err)
		}
		m.Phone, err = d.encryptor.DecryptIfEnabled(encryptedPhone)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt contact phone: %w", err)
		}
		m.Name, err = d.encryptor.DecryptIfEnabled(encryptedName)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt contact name: %w", err)
		}
		contacts = append(contacts, m)
	}
	return contacts, rows.Err()
}
