package model

import (
	"time"
)

// User platform account
type User struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email       string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	DisplayName string    `gorm:"type:varchar(100);not null" json:"display_name"`
	Role        Role      `gorm:"type:varchar(20);not null" json:"role"`
	ProfileImg  *string   `gorm:"type:text" json:"profile_img,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Participants []LiveClassParticipant `gorm:"foreignKey:UserID" json:"participants,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// LiveClass a scheduled class session
type LiveClass struct {
	ID        int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	CourseID  *int64      `json:"course_id,omitempty"`
	TeacherID int64       `gorm:"not null" json:"teacher_id"`
	Title     string      `gorm:"type:varchar(200);not null" json:"title"`
	Status    ClassStatus `gorm:"type:varchar(20);default:'SCHEDULED'" json:"status"`
	StartedAt *time.Time  `json:"started_at,omitempty"`
	EndedAt   *time.Time  `json:"ended_at,omitempty"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Teacher      User                   `gorm:"foreignKey:TeacherID" json:"teacher,omitempty"`
	Participants []LiveClassParticipant `gorm:"foreignKey:LiveClassID" json:"participants,omitempty"`
	ChatMessages []LiveClassChatMessage `gorm:"foreignKey:LiveClassID" json:"chat_messages,omitempty"`
}

func (LiveClass) TableName() string {
	return "live_classes"
}

// LiveClassParticipant durable membership record for a live class.
// At most one row per (live_class_id, user_id); the unique index backs
// the in-memory dedup invariant.
type LiveClassParticipant struct {
	ID             int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	LiveClassID    int64      `gorm:"not null;uniqueIndex:idx_class_user" json:"live_class_id"`
	UserID         int64      `gorm:"not null;uniqueIndex:idx_class_user" json:"user_id"`
	UserRole       Role       `gorm:"type:varchar(20);not null" json:"user_role"`
	DisplayName    string     `gorm:"type:varchar(100);not null" json:"display_name"`
	JoinedAt       time.Time  `gorm:"not null" json:"joined_at"`
	LeftAt         *time.Time `json:"left_at,omitempty"`
	IsMuted        bool       `gorm:"default:false" json:"is_muted"`
	IsVideoEnabled bool       `gorm:"default:true" json:"is_video_enabled"`
	HasRaisedHand  bool       `gorm:"default:false" json:"has_raised_hand"`

	// Relations
	LiveClass LiveClass `gorm:"foreignKey:LiveClassID" json:"live_class,omitempty"`
	User      User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (LiveClassParticipant) TableName() string {
	return "live_class_participants"
}

// LiveClassChatMessage append-only chat entry. Seq is assigned by the
// room's serialized path, so it is gap-free and monotonic per class.
type LiveClassChatMessage struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	LiveClassID int64     `gorm:"not null;uniqueIndex:idx_class_seq" json:"live_class_id"`
	Seq         int64     `gorm:"not null;uniqueIndex:idx_class_seq" json:"seq"`
	AuthorID    int64     `gorm:"not null" json:"author_id"`
	AuthorRole  Role      `gorm:"type:varchar(20);not null" json:"author_role"`
	AuthorName  string    `gorm:"type:varchar(100);not null" json:"author_name"`
	Text        string    `gorm:"type:text;not null" json:"text"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	LiveClass LiveClass `gorm:"foreignKey:LiveClassID" json:"live_class,omitempty"`
}

func (LiveClassChatMessage) TableName() string {
	return "live_class_chat_messages"
}
