package user

import "github.com/Anvoria/sessionly/internal/database"

type User struct {
	database.BaseModel
	Username string `gorm:"column:username;unique;not null"`
	Email    string `gorm:"column:email;unique;not null"`
	Password string `gorm:"column:password;not null"`
	IsActive bool   `gorm:"column:is_active;default:true"`
}

func (User) TableName() string {
	return "users"
}
