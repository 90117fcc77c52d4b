package models

type SessionEntry struct {
	Name  string `gorm:"primaryKey;size:64" json:"name"`
	Value string `gorm:"not null"           json:"value"`
}

type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string `gorm:"unique;not null"          json:"username"`
	PasswordHash string `gorm:"not null"                 json:"-"`
	Role         string `gorm:"not null;default:cashier" json:"role"`
}

type RefreshToken struct {
	ID        uint   `gorm:"primaryKey"            json:"id"`
	JTI       string `gorm:"not null;uniqueIndex"  json:"jti"`
	UserID    uint   `gorm:"index;not null"        json:"user_id"`
	ExpiresAt int64  `gorm:"not null"              json:"expires_at"`
	Revoked   bool   `gorm:"default:false"         json:"revoked"`
}
