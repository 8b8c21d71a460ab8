// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 schema 提供 JSON Schema 模型、基于反射的 Schema 生成与校验，
供结构化输出抽取与检测模型的响应约束使用。

# 核心类型

  - JSONSchema：Schema 定义，支持嵌套对象、数组、枚举与常用约束。
  - Generator：从 Go 类型生成 Schema，识别 json 与 jsonschema 标签。
  - Validator：按 Schema 校验 JSON 数据，返回带路径的 ValidationErrors。

# 辅助函数

ExtractJSON 从模型回复中剥离 markdown 代码块与多余文字。
*/
package schema
