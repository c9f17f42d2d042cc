package bootstrap

import (
	"log"

	"anoa.com/threadline/internal/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.User{},
		&entity.Post{},
		&entity.Comment{},
		&entity.InteractionType{},
		&entity.PostInteraction{},
		&entity.CommentInteraction{},
	)
}

// SeedInteractionTypes inserts the fixed interaction catalogue. Existing rows
// are left untouched.
func SeedInteractionTypes(db *gorm.DB) error {
	types := make([]entity.InteractionType, len(entity.DefaultInteractionTypes))
	copy(types, entity.DefaultInteractionTypes)

	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&types).Error
}

// SeedDemo creates a demo user and post on an empty database so a fresh
// development instance has something to comment on.
func SeedDemo(db *gorm.DB) error {
	var count int64
	if err := db.Model(&entity.Post{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	user := entity.User{Username: "demo"}
	if err := db.Where(entity.User{Username: "demo"}).FirstOrCreate(&user).Error; err != nil {
		return err
	}

	post := entity.Post{
		AuthorID: user.ID,
		Title:    "Welcome to threadline",
		Content:  "Say hello in the comments.",
	}
	if err := db.Create(&post).Error; err != nil {
		return err
	}

	log.Printf("🌱 Seeded demo user %d and post %d", user.ID, post.ID)
	return nil
}
