package database

import (
	"time"
)

// ChallengeRow is the engine-owned durable state: one row per challenge
// keyed by its stable string key. Rate windows are deliberately not
// persisted.
type ChallengeRow struct {
	Key      string     `db:"key" json:"key"`
	Solved   bool       `db:"solved" json:"solved"`
	SolvedAt *time.Time `db:"solved_at" json:"solvedAt,omitempty"`
}

type User struct {
	ID          int64     `db:"id" json:"id"`
	Email       string    `db:"email" json:"email"`
	Password    string    `db:"password" json:"-"`
	Username    string    `db:"username" json:"username"`
	Role        string    `db:"role" json:"role"`
	Deluxe      bool      `db:"deluxe" json:"deluxe"`
	LastLoginIP string    `db:"last_login_ip" json:"lastLoginIp"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

type Product struct {
	ID          int64   `db:"id" json:"id"`
	Name        string  `db:"name" json:"name"`
	Description string  `db:"description" json:"description"`
	Price       float64 `db:"price" json:"price"`
	Image       string  `db:"image" json:"image"`
}

type Basket struct {
	ID     int64        `db:"id" json:"id"`
	UserID int64        `db:"user_id" json:"userId"`
	Items  []BasketItem `db:"-" json:"items"`
}

type BasketItem struct {
	ID        int64  `db:"id" json:"id"`
	BasketID  int64  `db:"basket_id" json:"basketId"`
	ProductID int64  `db:"product_id" json:"productId"`
	Name      string `db:"name" json:"name"`
	Quantity  int    `db:"quantity" json:"quantity"`
}

type Feedback struct {
	ID        string    `db:"id" json:"id"`
	UserID    *int64    `db:"user_id" json:"userId,omitempty"`
	Comment   string    `db:"comment" json:"comment"`
	Rating    int       `db:"rating" json:"rating"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type Complaint struct {
	ID        string    `db:"id" json:"id"`
	UserID    *int64    `db:"user_id" json:"userId,omitempty"`
	Message   string    `db:"message" json:"message"`
	File      string    `db:"file" json:"file,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type Review struct {
	ID        int64     `db:"id" json:"id"`
	ProductID int64     `db:"product_id" json:"productId"`
	Author    string    `db:"author" json:"author"`
	Message   string    `db:"message" json:"message"`
	LikedBy   string    `db:"liked_by" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type Wallet struct {
	UserID  int64   `db:"user_id" json:"userId"`
	Balance float64 `db:"balance" json:"balance"`
}

type Card struct {
	ID       int64  `db:"id" json:"id"`
	UserID   int64  `db:"user_id" json:"userId"`
	FullName string `db:"full_name" json:"fullName"`
	CardNum  int64  `db:"card_num" json:"cardNum"`
	ExpMonth int    `db:"exp_month" json:"expMonth"`
	ExpYear  int    `db:"exp_year" json:"expYear"`
}

type DeliveryMethod struct {
	ID          int64   `db:"id" json:"id"`
	Name        string  `db:"name" json:"name"`
	Price       float64 `db:"price" json:"price"`
	DeluxePrice float64 `db:"deluxe_price" json:"-"`
	ETA         int     `db:"eta" json:"eta"`
	Icon        string  `db:"icon" json:"icon"`
}

type RecycleItem struct {
	ID       int64  `db:"id" json:"id"`
	UserID   int64  `db:"user_id" json:"userId"`
	Quantity int    `db:"quantity" json:"quantity"`
	Address  string `db:"address" json:"address"`
	Pickup   bool   `db:"pickup" json:"isPickup"`
}
