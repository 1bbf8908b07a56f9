// Package referral 推荐关系遍历
//
// 推荐关系由 user.parent_code 指向上级的 referral_code 构成，数据库不保证无环，
// 所有遍历都记录已访问节点并限制最大深度。
package referral

import (
	"context"
	"fmt"

	"hgnc/internal/model"
)

const DefaultMaxDepth = 64

// Directory 用户目录的只读视图
type Directory interface {
	// FindByReferralCode 不过滤已注销用户，找不到返回 nil, nil
	FindByReferralCode(ctx context.Context, code string) (*model.User, error)
	ListByParentCodes(ctx context.Context, codes []string) ([]*model.User, error)
}

type Walker struct {
	dir      Directory
	maxDepth int
}

func NewWalker(dir Directory, maxDepth int) *Walker {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Walker{dir: dir, maxDepth: maxDepth}
}

// Ancestors 返回 user 的上级链，离 user 最近的在前
// 已注销的上级同样返回（作为链路的一环），上级缺失视为到达根节点
func (w *Walker) Ancestors(ctx context.Context, user *model.User) ([]*model.User, error) {
	if user == nil {
		return nil, nil
	}

	visited := map[string]bool{user.ID: true}
	ancestors := make([]*model.User, 0, 8)

	code := user.ParentCode
	for code != "" && len(ancestors) < w.maxDepth {
		parent, err := w.dir.FindByReferralCode(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("查询上级失败 code=%s: %w", code, err)
		}
		if parent == nil || visited[parent.ID] {
			break
		}
		visited[parent.ID] = true
		ancestors = append(ancestors, parent)
		code = parent.ParentCode
	}

	return ancestors, nil
}

// Levels 按层返回 code 下面的团队成员，最多 depth 层
func (w *Walker) Levels(ctx context.Context, code string, depth int) ([][]*model.User, error) {
	if code == "" || depth <= 0 {
		return nil, nil
	}
	if depth > w.maxDepth {
		depth = w.maxDepth
	}

	visited := map[string]bool{code: true}
	frontier := []string{code}
	levels := make([][]*model.User, 0, depth)

	for i := 0; i < depth && len(frontier) > 0; i++ {
		children, err := w.dir.ListByParentCodes(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("查询下级失败: %w", err)
		}

		next := make([]string, 0, len(children))
		level := make([]*model.User, 0, len(children))
		for _, child := range children {
			if visited[child.ReferralCode] {
				continue
			}
			visited[child.ReferralCode] = true
			level = append(level, child)
			next = append(next, child.ReferralCode)
		}
		if len(level) == 0 {
			break
		}
		levels = append(levels, level)
		frontier = next
	}

	return levels, nil
}

// Descendants 返回 codes 下面所有层级成员的 id，去重且不包含 codes 本身对应的用户
func (w *Walker) Descendants(ctx context.Context, codes ...string) ([]string, error) {
	visited := make(map[string]bool, len(codes))
	frontier := make([]string, 0, len(codes))
	for _, c := range codes {
		if c == "" || visited[c] {
			continue
		}
		visited[c] = true
		frontier = append(frontier, c)
	}

	var ids []string
	seen := make(map[string]bool)
	for depth := 0; depth < w.maxDepth && len(frontier) > 0; depth++ {
		children, err := w.dir.ListByParentCodes(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("查询下级失败: %w", err)
		}

		next := make([]string, 0, len(children))
		for _, child := range children {
			if visited[child.ReferralCode] {
				continue
			}
			visited[child.ReferralCode] = true
			if !seen[child.ID] {
				seen[child.ID] = true
				ids = append(ids, child.ID)
			}
			next = append(next, child.ReferralCode)
		}
		frontier = next
	}

	return ids, nil
}
