// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// Bearerトークン認証、CORS設定、パニックリカバリなど、
// ゲートウェイ全体で共通して使用するミドルウェアを含む。
package middleware
